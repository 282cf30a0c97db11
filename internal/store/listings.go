package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/vitrina-app/vitrina/internal/models"
)

const listingsCollection = "listings"

// ListingRepository persists product listings in Firestore. The source post
// URL is the natural uniqueness boundary: re-ingesting a post that already
// has a listing must not create a second one.
type ListingRepository struct {
	client *firestore.Client
}

func NewListingRepository(client *firestore.Client) *ListingRepository {
	return &ListingRepository{client: client}
}

// ExistsBySourcePost reports whether a listing already exists for the post URL.
func (r *ListingRepository) ExistsBySourcePost(ctx context.Context, postURL string) (bool, error) {
	docs, err := r.client.Collection(listingsCollection).
		Where("sourcePostUrl", "==", postURL).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return false, fmt.Errorf("failed to query for existing listing: %w", err)
	}
	return len(docs) > 0, nil
}

// AddDraft inserts the listing in its draft state (image and payment fields
// empty) and returns the generated ID used by the later patch.
func (r *ListingRepository) AddDraft(ctx context.Context, listing *models.Listing) (string, error) {
	listing.CreatedAt = time.Now()
	docRef, _, err := r.client.Collection(listingsCollection).Add(ctx, listing)
	if err != nil {
		return "", fmt.Errorf("failed to create draft listing: %w", err)
	}
	return docRef.ID, nil
}

// Patch fills in the enrichment fields of a previously drafted listing.
// An empty payment link leaves the field absent rather than writing "".
func (r *ListingRepository) Patch(ctx context.Context, id, processedImageURL, paymentLink string) error {
	updates := []firestore.Update{
		{Path: "processedImageUrl", Value: processedImageURL},
	}
	if paymentLink != "" {
		updates = append(updates, firestore.Update{Path: "paymentLink", Value: paymentLink})
	}
	if _, err := r.client.Collection(listingsCollection).Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to patch listing %s: %w", id, err)
	}
	return nil
}

// ListByHandle returns up to limit listings for the handle, most recent first.
func (r *ListingRepository) ListByHandle(ctx context.Context, handle string, limit int) ([]models.Listing, error) {
	it := r.client.Collection(listingsCollection).
		Where("handle", "==", handle).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)

	var listings []models.Listing
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list listings for %s: %w", handle, err)
		}
		var listing models.Listing
		if err := doc.DataTo(&listing); err != nil {
			return nil, fmt.Errorf("failed to decode listing %s: %w", doc.Ref.ID, err)
		}
		listing.ID = doc.Ref.ID
		listings = append(listings, listing)
	}
	return listings, nil
}
