package api

import (
	"context"

	"github.com/vitrina-app/vitrina/internal/mercadopago"
	"github.com/vitrina-app/vitrina/internal/models"
)

// RequestStore is the slice of the request repository the API uses.
type RequestStore interface {
	Create(ctx context.Context, handle string) (string, error)
	LatestByHandle(ctx context.Context, handle string) (*models.CatalogRequest, error)
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error
}

// ListingStore serves the catalog read path.
type ListingStore interface {
	ListByHandle(ctx context.Context, handle string, limit int) ([]models.Listing, error)
}

// MerchantStore persists seller credentials from the OAuth callback.
type MerchantStore interface {
	Save(ctx context.Context, merchant models.Merchant) error
}

// PostFetcher produces the raw posts for a handle.
type PostFetcher interface {
	FetchPosts(ctx context.Context, handle string, limit int) ([]models.RawPost, error)
	Configured() bool
}

// Runner drives a batch of posts through the ingestion pipeline.
type Runner interface {
	Run(ctx context.Context, requestID, handle string, posts []models.RawPost) (*models.RunSummary, error)
}

// PaymentConnector handles the seller OAuth flow.
type PaymentConnector interface {
	AuthorizationURL(handle string) string
	ExchangeCode(ctx context.Context, code string) (*mercadopago.Credentials, error)
	Configured() bool
}

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	requests    RequestStore
	listings    ListingStore
	merchants   MerchantStore
	fetcher     PostFetcher
	runner      Runner
	payments    PaymentConnector
	scrapeLimit int
}

// NewHandler wires the handler. scrapeLimit caps how many posts one
// submission ingests.
func NewHandler(requests RequestStore, listings ListingStore, merchants MerchantStore,
	fetcher PostFetcher, runner Runner, payments PaymentConnector, scrapeLimit int) *Handler {
	if scrapeLimit <= 0 {
		scrapeLimit = 5
	}
	return &Handler{
		requests:    requests,
		listings:    listings,
		merchants:   merchants,
		fetcher:     fetcher,
		runner:      runner,
		payments:    payments,
		scrapeLimit: scrapeLimit,
	}
}
