package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/vitrina-app/vitrina/internal/models"
)

const merchantsCollection = "merchants"

// MerchantRepository persists seller payment credentials, keyed by handle.
type MerchantRepository struct {
	client *firestore.Client
}

func NewMerchantRepository(client *firestore.Client) *MerchantRepository {
	return &MerchantRepository{client: client}
}

// Get returns the merchant connected for the handle, or nil if the seller
// has not connected payment. Absence is expected, not an error.
func (r *MerchantRepository) Get(ctx context.Context, handle string) (*models.Merchant, error) {
	docs, err := r.client.Collection(merchantsCollection).
		Where("handle", "==", handle).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant for %s: %w", handle, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var merchant models.Merchant
	if err := docs[0].DataTo(&merchant); err != nil {
		return nil, fmt.Errorf("failed to decode merchant: %w", err)
	}
	return &merchant, nil
}

// Save upserts the merchant credential, keeping a single record per handle.
func (r *MerchantRepository) Save(ctx context.Context, merchant models.Merchant) error {
	merchant.UpdatedAt = time.Now()

	docs, err := r.client.Collection(merchantsCollection).
		Where("handle", "==", merchant.Handle).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("failed to query existing merchant for %s: %w", merchant.Handle, err)
	}

	if len(docs) > 0 {
		if _, err := docs[0].Ref.Set(ctx, merchant); err != nil {
			return fmt.Errorf("failed to update merchant for %s: %w", merchant.Handle, err)
		}
		return nil
	}

	if _, _, err := r.client.Collection(merchantsCollection).Add(ctx, merchant); err != nil {
		return fmt.Errorf("failed to create merchant for %s: %w", merchant.Handle, err)
	}
	return nil
}
