package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/vitrina-app/vitrina/internal/api"
	"github.com/vitrina-app/vitrina/internal/gcp"
	"github.com/vitrina-app/vitrina/internal/ingest"
	"github.com/vitrina-app/vitrina/internal/mercadopago"
	"github.com/vitrina-app/vitrina/internal/scraper"
	"github.com/vitrina-app/vitrina/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Local development convenience; in production the env is already set.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env file.")
	}

	ctx := context.Background()

	projectID := gcp.GetEnv("GCP_PROJECT", "")
	if projectID == "" {
		slog.Error("GCP_PROJECT environment variable must be set")
		os.Exit(1)
	}
	imagesBucket := gcp.GetEnv("PRODUCT_IMAGES_BUCKET", "")
	if imagesBucket == "" {
		slog.Error("PRODUCT_IMAGES_BUCKET environment variable must be set")
		os.Exit(1)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		slog.Error("Failed to create Firestore client", "error", err)
		os.Exit(1)
	}
	defer firestoreClient.Close()

	blobStore, err := gcp.NewBlobStore(ctx, imagesBucket)
	if err != nil {
		slog.Error("Failed to create blob store", "error", err)
		os.Exit(1)
	}
	defer blobStore.Close()

	vertexClient, err := gcp.NewVertexClient(ctx, projectID, gcp.GetEnv("VERTEX_AI_REGION", "us-central1"))
	if err != nil {
		slog.Error("Failed to create Vertex client", "error", err)
		os.Exit(1)
	}
	defer vertexClient.Close()

	mpClient := mercadopago.NewClient(mercadopago.Config{
		AppID:        gcp.GetEnv("MP_APP_ID", ""),
		ClientSecret: gcp.GetEnv("MP_CLIENT_SECRET", ""),
		RedirectURI:  gcp.GetEnv("MP_REDIRECT_URI", ""),
		SuccessURL:   gcp.GetEnv("MP_SUCCESS_URL", ""),
		FailureURL:   gcp.GetEnv("MP_FAILURE_URL", ""),
		PendingURL:   gcp.GetEnv("MP_PENDING_URL", ""),
	})
	if !mpClient.Configured() {
		slog.Warn("Mercado Pago credentials not set; payment links will be absent.")
	}

	apifyClient := scraper.NewClient(gcp.GetEnv("APIFY_API_TOKEN", ""))
	if !apifyClient.Configured() {
		slog.Warn("APIFY_API_TOKEN not set; catalog submissions will be rejected.")
	}

	requests := store.NewRequestRepository(firestoreClient)
	listings := store.NewListingRepository(firestoreClient)
	merchants := store.NewMerchantRepository(firestoreClient)

	currency := gcp.GetEnv("CATALOG_CURRENCY", "CLP")
	orchestrator := ingest.NewOrchestrator(
		requests,
		listings,
		ingest.NewDeduplicator(listings),
		ingest.NewProductExtractor(vertexClient),
		ingest.NewImageNormalizer(vertexClient, blobStore),
		ingest.NewPaymentLinkGenerator(merchants, mpClient, currency, envFloat("MP_MARKETPLACE_FEE", 0)),
		ingest.OrchestratorConfig{
			BatchSize: envInt("INGEST_BATCH_SIZE", ingest.DefaultBatchSize),
			Currency:  currency,
		},
	)

	handler := api.NewHandler(requests, listings, merchants, apifyClient, orchestrator, mpClient,
		envInt("SCRAPE_POST_LIMIT", 5))
	server := api.NewServer(handler)

	port := gcp.GetEnv("PORT", "8080")
	slog.Info("Catalog server listening.", "port", port)
	if err := server.Run(":" + port); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func envInt(key string, fallback int) int {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Ignoring invalid integer environment variable", "key", key, "value", raw)
		return fallback
	}
	return value
}

func envFloat(key string, fallback float64) float64 {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("Ignoring invalid float environment variable", "key", key, "value", raw)
		return fallback
	}
	return value
}
