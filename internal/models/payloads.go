package models

// These structs define the JSON payloads exchanged with callers of the
// ingestion worker and the public API.

// IngestRequest is the input of the ingestion worker: an already-scraped
// batch of posts for one catalog request.
type IngestRequest struct {
	RequestID string    `json:"requestId"`
	Handle    string    `json:"handle"`
	Posts     []RawPost `json:"posts"`
}

// RunSummary is the result of one ingestion run.
type RunSummary struct {
	Processed int       `json:"processed"`
	Valid     int       `json:"valid"`
	Listings  []Listing `json:"listings"`
}

// SubmitResponse is returned when a new catalog request is accepted.
type SubmitResponse struct {
	RequestID string `json:"requestId"`
}

// StatusResponse is the polled lifecycle view of a handle's latest request.
type StatusResponse struct {
	RequestID   string        `json:"requestId"`
	Status      RequestStatus `json:"status"`
	RequestTime string        `json:"requestTime"`
}
