package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/vitrina-app/vitrina/internal/models"
)

const requestsCollection = "catalog_requests"

// RequestRepository persists catalog requests in Firestore.
type RequestRepository struct {
	client *firestore.Client
}

func NewRequestRepository(client *firestore.Client) *RequestRepository {
	return &RequestRepository{client: client}
}

// Create inserts a new pending request for the handle and returns its ID.
func (r *RequestRepository) Create(ctx context.Context, handle string) (string, error) {
	docRef, _, err := r.client.Collection(requestsCollection).Add(ctx, models.CatalogRequest{
		Handle:    handle,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create catalog request: %w", err)
	}
	return docRef.ID, nil
}

// Get returns the request with the given ID, or nil if it does not exist.
func (r *RequestRepository) Get(ctx context.Context, id string) (*models.CatalogRequest, error) {
	snap, err := r.client.Collection(requestsCollection).Doc(id).Get(ctx)
	if snap != nil && !snap.Exists() {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog request %s: %w", id, err)
	}

	var req models.CatalogRequest
	if err := snap.DataTo(&req); err != nil {
		return nil, fmt.Errorf("failed to decode catalog request %s: %w", id, err)
	}
	req.ID = snap.Ref.ID
	return &req, nil
}

// UpdateStatus sets the request's status unconditionally.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error {
	_, err := r.client.Collection(requestsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "status", Value: status},
	})
	if err != nil {
		return fmt.Errorf("failed to update status of request %s: %w", id, err)
	}
	return nil
}

// LatestByHandle returns the most recently created request for the handle,
// or nil if the handle has never been submitted.
func (r *RequestRepository) LatestByHandle(ctx context.Context, handle string) (*models.CatalogRequest, error) {
	docs, err := r.client.Collection(requestsCollection).
		Where("handle", "==", handle).
		OrderBy("createdAt", firestore.Desc).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query latest request for %s: %w", handle, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var req models.CatalogRequest
	if err := docs[0].DataTo(&req); err != nil {
		return nil, fmt.Errorf("failed to decode catalog request: %w", err)
	}
	req.ID = docs[0].Ref.ID
	return &req, nil
}
