package ingest

import (
	"context"

	"github.com/vitrina-app/vitrina/internal/mercadopago"
	"github.com/vitrina-app/vitrina/internal/models"
)

// The pipeline depends on its collaborators through these interfaces so
// tests can substitute fakes for the external clients.

// RequestStore is the slice of the request repository the pipeline uses.
type RequestStore interface {
	Get(ctx context.Context, id string) (*models.CatalogRequest, error)
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error
}

// ListingStore is the slice of the listing repository the pipeline uses.
type ListingStore interface {
	ExistsBySourcePost(ctx context.Context, postURL string) (bool, error)
	AddDraft(ctx context.Context, listing *models.Listing) (string, error)
	Patch(ctx context.Context, id, processedImageURL, paymentLink string) error
}

// MerchantStore resolves a handle to its payment credential, if connected.
type MerchantStore interface {
	Get(ctx context.Context, handle string) (*models.Merchant, error)
}

// TextGenerator is the text-extraction collaborator: prompt in, text out.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ImageEditor is the image-generation collaborator. A (nil, "", nil) return
// means the model produced no image data, which is a normal outcome.
type ImageEditor interface {
	EditImage(ctx context.Context, data []byte, mimeType string) ([]byte, string, error)
}

// BlobUploader stores image bytes and returns a stable public URL.
type BlobUploader interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// PreferenceCreator is the payment-provider collaborator.
type PreferenceCreator interface {
	CreatePreference(ctx context.Context, accessToken string, pref mercadopago.PreferenceRequest) (string, error)
}
