package ingest

import "github.com/vitrina-app/vitrina/internal/models"

// ItemOutcome classifies what happened to a single post's pipeline.
type ItemOutcome string

const (
	// OutcomeOK: the post produced a fully enriched listing.
	OutcomeOK ItemOutcome = "ok"
	// OutcomeSkipped: no listing was produced (dedup hit, no product found,
	// draft write failure). Never an error for the run.
	OutcomeSkipped ItemOutcome = "skipped"
	// OutcomeDegraded: a listing exists but one or more enrichment steps
	// fell back to a safe default.
	OutcomeDegraded ItemOutcome = "degraded"
)

// ItemResult is the typed per-post summary the batch aggregator consumes,
// in place of exception suppression.
type ItemResult struct {
	PostURL  string
	Outcome  ItemOutcome
	Reason   string
	Warnings []string
	Listing  *models.Listing
}

func skipped(postURL, reason string) ItemResult {
	return ItemResult{PostURL: postURL, Outcome: OutcomeSkipped, Reason: reason}
}
