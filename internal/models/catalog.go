package models

import "time"

// RequestStatus is the lifecycle state of a catalog request. The only path
// the orchestrator drives is pending -> processing -> completed|failed;
// completed and failed are terminal.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
)

// Terminal reports whether no further transition may leave this status.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CatalogRequest is the main record for one ingestion run of a handle.
// It tracks the overall status polled by downstream consumers.
type CatalogRequest struct {
	ID        string        `firestore:"-"`
	Handle    string        `firestore:"handle"`
	Status    RequestStatus `firestore:"status"`
	CreatedAt time.Time     `firestore:"createdAt"`
}

// RawPost is a scraped social post as delivered by the scraping provider.
// Read-only to the pipeline.
type RawPost struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Caption  string `json:"caption"`
	ImageURL string `json:"displayUrl"`
}

// ExtractedFields is the structured answer of the caption extractor.
// Price is nil when the model could not find an unambiguous price; such
// items never become listings.
type ExtractedFields struct {
	ProductName string   `json:"productName"`
	Price       *float64 `json:"price"`
	Size        *string  `json:"size"`
}

// Listing is a persisted, user-visible product. It is created as a draft
// right after extraction (image and payment fields empty) and patched in
// place once by the enrichment stages.
type Listing struct {
	ID                string    `firestore:"-"`
	RequestID         string    `firestore:"requestId"`
	Handle            string    `firestore:"handle"`
	ProductName       string    `firestore:"productName"`
	Price             float64   `firestore:"price"`
	Currency          string    `firestore:"currency"`
	Size              string    `firestore:"size,omitempty"`
	OriginalImageURL  string    `firestore:"originalImageUrl"`
	ProcessedImageURL string    `firestore:"processedImageUrl,omitempty"`
	SourcePostURL     string    `firestore:"sourcePostUrl"`
	PaymentLink       string    `firestore:"paymentLink,omitempty"`
	CreatedAt         time.Time `firestore:"createdAt"`
}

// Merchant is a seller's payment-provider credential, keyed by handle.
// Written by the OAuth callback, only read by the pipeline.
type Merchant struct {
	Handle       string    `firestore:"handle"`
	MPUserID     string    `firestore:"mpUserId"`
	AccessToken  string    `firestore:"accessToken"`
	RefreshToken string    `firestore:"refreshToken"`
	ExpiresAt    time.Time `firestore:"expiresAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}
