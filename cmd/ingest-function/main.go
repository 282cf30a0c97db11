package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/vitrina-app/vitrina/internal/gcp"
	"github.com/vitrina-app/vitrina/internal/ingest"
	"github.com/vitrina-app/vitrina/internal/mercadopago"
	"github.com/vitrina-app/vitrina/internal/models"
	"github.com/vitrina-app/vitrina/internal/store"
)

var (
	orchestrator *ingest.Orchestrator
	once         sync.Once
	initErr      error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the HTTP function with the framework.
	// "HandleIngestPosts" is the entry point name configured in GCP.
	functions.HTTP("HandleIngestPosts", handleIngestPosts)
}

// main is required by the Go Functions Framework.
func main() {}

// newOrchestrator builds the full pipeline from environment configuration.
func newOrchestrator(ctx context.Context) (*ingest.Orchestrator, error) {
	projectID := gcp.GetEnv("GCP_PROJECT", "")
	if projectID == "" {
		return nil, fmt.Errorf("GCP_PROJECT environment variable must be set")
	}
	imagesBucket := gcp.GetEnv("PRODUCT_IMAGES_BUCKET", "")
	if imagesBucket == "" {
		return nil, fmt.Errorf("PRODUCT_IMAGES_BUCKET environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	blobStore, err := gcp.NewBlobStore(ctx, imagesBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}

	vertexClient, err := gcp.NewVertexClient(ctx, projectID, gcp.GetEnv("VERTEX_AI_REGION", "us-central1"))
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	mpClient := mercadopago.NewClient(mercadopago.Config{
		AppID:        gcp.GetEnv("MP_APP_ID", ""),
		ClientSecret: gcp.GetEnv("MP_CLIENT_SECRET", ""),
		RedirectURI:  gcp.GetEnv("MP_REDIRECT_URI", ""),
		SuccessURL:   gcp.GetEnv("MP_SUCCESS_URL", ""),
		FailureURL:   gcp.GetEnv("MP_FAILURE_URL", ""),
		PendingURL:   gcp.GetEnv("MP_PENDING_URL", ""),
	})

	requests := store.NewRequestRepository(firestoreClient)
	listings := store.NewListingRepository(firestoreClient)
	merchants := store.NewMerchantRepository(firestoreClient)

	currency := gcp.GetEnv("CATALOG_CURRENCY", "CLP")
	return ingest.NewOrchestrator(
		requests,
		listings,
		ingest.NewDeduplicator(listings),
		ingest.NewProductExtractor(vertexClient),
		ingest.NewImageNormalizer(vertexClient, blobStore),
		ingest.NewPaymentLinkGenerator(merchants, mpClient, currency, 0),
		ingest.OrchestratorConfig{Currency: currency},
	), nil
}

// handleIngestPosts is the HTTP handler for the ingestion worker.
func handleIngestPosts(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		orchestrator, initErr = newOrchestrator(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: Orchestrator initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	summary, err := orchestrator.Run(r.Context(), req.RequestID, req.Handle, req.Posts)
	if err != nil {
		// The specific error is already logged inside Run.
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		slog.Error(
			"Failed to write response",
			"error", err,
			"requestId", req.RequestID,
			"handle", req.Handle,
		)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
