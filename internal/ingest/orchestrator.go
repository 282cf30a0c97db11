package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/vitrina-app/vitrina/internal/models"
)

// DefaultBatchSize bounds concurrent load on the text and image
// collaborators while still parallelizing within a small window. It is a
// tunable, not a correctness requirement.
const DefaultBatchSize = 2

// OrchestratorConfig tunes a catalog ingestion run.
type OrchestratorConfig struct {
	BatchSize int
	Currency  string
}

// Orchestrator drives a batch of raw posts through the full pipeline:
// dedup, extraction, draft persistence, image normalization, payment link,
// final patch. It is the only component that knows the full sequence.
type Orchestrator struct {
	lifecycle *RequestLifecycle
	requests  RequestStore
	listings  ListingStore
	dedup     *Deduplicator
	extractor *ProductExtractor
	images    *ImageNormalizer
	payments  *PaymentLinkGenerator
	config    OrchestratorConfig
}

func NewOrchestrator(requests RequestStore, listings ListingStore, dedup *Deduplicator,
	extractor *ProductExtractor, images *ImageNormalizer, payments *PaymentLinkGenerator,
	config OrchestratorConfig) *Orchestrator {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Currency == "" {
		config.Currency = "CLP"
	}
	return &Orchestrator{
		lifecycle: NewRequestLifecycle(requests),
		requests:  requests,
		listings:  listings,
		dedup:     dedup,
		extractor: extractor,
		images:    images,
		payments:  payments,
		config:    config,
	}
}

// Run processes all posts for one catalog request and settles the request's
// status. Per-post faults are contained at the post boundary; only
// orchestration-level faults (missing request, status write failure) are
// returned, and in those cases the request is flipped to failed whenever
// that write is still reachable.
func (o *Orchestrator) Run(ctx context.Context, requestID, handle string, posts []models.RawPost) (*models.RunSummary, error) {
	logCtx := slog.With("requestId", requestID, "handle", handle)
	logCtx.Info("Starting ingestion run.", "posts", len(posts))

	request, err := o.requests.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve request %s: %w", requestID, err)
	}
	if request == nil {
		return nil, fmt.Errorf("request %s not found", requestID)
	}

	if err := o.lifecycle.Transition(ctx, requestID, models.StatusProcessing); err != nil {
		return nil, err
	}

	results := make([]ItemResult, len(posts))
	for start := 0; start < len(posts); start += o.config.BatchSize {
		end := start + o.config.BatchSize
		if end > len(posts) {
			end = len(posts)
		}

		// Posts within a batch run concurrently; the next batch does not
		// start until every pipeline in this one has resolved.
		eg, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			eg.Go(func() error {
				results[i] = o.processPost(gctx, requestID, handle, posts[i])
				return nil
			})
		}
		_ = eg.Wait()

		// Caller cancellation is the one fault that escapes the per-post
		// boundary: the remaining batches cannot run, so the request must
		// not be left in processing.
		if err := ctx.Err(); err != nil {
			o.markFailed(ctx, requestID, err)
			return nil, fmt.Errorf("ingestion run interrupted: %w", err)
		}
	}

	if err := o.lifecycle.Transition(ctx, requestID, models.StatusCompleted); err != nil {
		return nil, err
	}

	summary := summarize(posts, results)
	logCtx.Info("Ingestion run complete.", "processed", summary.Processed, "valid", summary.Valid)
	return summary, nil
}

// processPost runs one post's pipeline. Every fault is caught here and
// converted to a typed result; nothing aborts the batch or the run.
func (o *Orchestrator) processPost(ctx context.Context, requestID, handle string, post models.RawPost) (result ItemResult) {
	logCtx := slog.With("requestId", requestID, "post", post.URL)

	defer func() {
		if r := recover(); r != nil {
			logCtx.Error("Post pipeline panicked, skipping post.", "panic", r)
			result = skipped(post.URL, "pipeline panic")
		}
	}()

	if post.URL != "" {
		ingested, err := o.dedup.AlreadyIngested(ctx, post.URL)
		if err != nil {
			logCtx.Error("Dedup check failed, skipping post.", "error", err)
			return skipped(post.URL, "dedup check failed")
		}
		if ingested {
			logCtx.Info("Post already ingested, skipping.")
			return skipped(post.URL, "already ingested")
		}
	}

	extracted := o.extractor.Extract(ctx, post.Caption)
	if extracted == nil {
		logCtx.Info("No valid product found in caption, skipping.")
		return skipped(post.URL, "no product found")
	}

	listing := &models.Listing{
		RequestID:        requestID,
		Handle:           handle,
		ProductName:      extracted.ProductName,
		Price:            *extracted.Price,
		Currency:         o.config.Currency,
		OriginalImageURL: post.ImageURL,
		SourcePostURL:    post.URL,
	}
	if extracted.Size != nil {
		listing.Size = *extracted.Size
	}

	// Draft first so watchers see partial results without waiting for the
	// whole item to finish.
	id, err := o.listings.AddDraft(ctx, listing)
	if err != nil {
		logCtx.Error("Failed to persist draft listing, skipping post.", "error", err)
		return skipped(post.URL, "draft persistence failed")
	}
	listing.ID = id
	logCtx.Info("Draft listing created.", "listingId", id, "product", listing.ProductName, "price", listing.Price)

	var warnings []string

	processedURL := o.images.Normalize(ctx, post.ImageURL, extracted.ProductName)
	listing.ProcessedImageURL = processedURL

	link := o.payments.CreateLink(ctx, handle, extracted.ProductName, listing.Price, processedURL)
	if link == "" {
		warnings = append(warnings, "no payment link")
	}
	listing.PaymentLink = link

	if err := o.listings.Patch(ctx, id, processedURL, link); err != nil {
		// The draft stays user-visible; the item degrades rather than fails.
		logCtx.Error("Failed to patch listing, leaving draft in place.", "listingId", id, "error", err)
		warnings = append(warnings, "enrichment patch failed")
	}

	if len(warnings) > 0 {
		return ItemResult{PostURL: post.URL, Outcome: OutcomeDegraded, Warnings: warnings, Listing: listing}
	}
	return ItemResult{PostURL: post.URL, Outcome: OutcomeOK, Listing: listing}
}

func (o *Orchestrator) markFailed(ctx context.Context, requestID string, cause error) {
	slog.Error("Ingestion run failed.", "requestId", requestID, "error", cause)
	// The run's own context may already be cancelled; the status write must
	// still go through so the request does not stay stuck in processing.
	ctx = context.WithoutCancel(ctx)
	if err := o.lifecycle.Transition(ctx, requestID, models.StatusFailed); err != nil {
		slog.Error("CRITICAL: Failed to mark request as failed", "requestId", requestID, "error", err)
	}
}

func summarize(posts []models.RawPost, results []ItemResult) *models.RunSummary {
	summary := &models.RunSummary{
		Processed: len(posts),
		Listings:  []models.Listing{},
	}
	for _, result := range results {
		if result.Listing != nil {
			summary.Valid++
			summary.Listings = append(summary.Listings, *result.Listing)
		}
	}
	return summary
}
