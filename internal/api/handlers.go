package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vitrina-app/vitrina/internal/models"
)

// runTimeout bounds one background ingestion run end to end. The pipeline
// itself has no mid-run cancellation; this only fences a wedged run.
const runTimeout = 15 * time.Minute

type submitPayload struct {
	Handle string `json:"handle" binding:"required"`
}

// Submit accepts a handle, creates a pending catalog request, and kicks off
// the scrape-then-ingest run in the background.
func (h *Handler) Submit(c *gin.Context) {
	var payload submitPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "handle is required"})
		return
	}

	if !h.fetcher.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scraping provider is not configured"})
		return
	}

	requestID, err := h.requests.Create(c.Request.Context(), payload.Handle)
	if err != nil {
		slog.Error("Failed to create catalog request", "handle", payload.Handle, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create request"})
		return
	}

	go h.runInBackground(requestID, payload.Handle)

	c.JSON(http.StatusAccepted, models.SubmitResponse{RequestID: requestID})
}

func (h *Handler) runInBackground(requestID, handle string) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	posts, err := h.fetcher.FetchPosts(ctx, handle, h.scrapeLimit)
	if err != nil {
		slog.Error("Scrape failed", "requestId", requestID, "handle", handle, "error", err)
		if err := h.requests.UpdateStatus(ctx, requestID, models.StatusFailed); err != nil {
			slog.Error("CRITICAL: Failed to mark request as failed after scrape error", "requestId", requestID, "error", err)
		}
		return
	}

	if _, err := h.runner.Run(ctx, requestID, handle, posts); err != nil {
		// Run settles the request status itself; nothing left to do here.
		slog.Error("Ingestion run failed", "requestId", requestID, "error", err)
	}
}

// GetStatus returns the lifecycle of the handle's latest request.
func (h *Handler) GetStatus(c *gin.Context) {
	handle := c.Param("handle")

	request, err := h.requests.LatestByHandle(c.Request.Context(), handle)
	if err != nil {
		slog.Error("Failed to query latest request", "handle", handle, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query request"})
		return
	}
	if request == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no request found for handle"})
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{
		RequestID:   request.ID,
		Status:      request.Status,
		RequestTime: request.CreatedAt.Format(time.RFC3339),
	})
}

// GetListings returns the handle's listings, most recent first.
func (h *Handler) GetListings(c *gin.Context) {
	handle := c.Param("handle")

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if parsed > 100 {
			parsed = 100
		}
		limit = parsed
	}

	listings, err := h.listings.ListByHandle(c.Request.Context(), handle, limit)
	if err != nil {
		slog.Error("Failed to query listings", "handle", handle, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query listings"})
		return
	}
	if listings == nil {
		listings = []models.Listing{}
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"total":    len(listings),
	})
}

// Connect returns the payment-provider OAuth URL for a seller.
func (h *Handler) Connect(c *gin.Context) {
	handle := c.Query("handle")
	if handle == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "handle is required"})
		return
	}
	if !h.payments.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment provider is not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": h.payments.AuthorizationURL(handle)})
}

// Callback completes the seller OAuth flow: exchanges the code and stores
// the merchant credential. The state parameter carries the handle.
func (h *Handler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
		return
	}

	credentials, err := h.payments.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		slog.Error("OAuth code exchange failed", "handle", state, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to exchange code"})
		return
	}

	merchant := models.Merchant{
		Handle:       state,
		MPUserID:     credentials.UserID,
		AccessToken:  credentials.AccessToken,
		RefreshToken: credentials.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(credentials.ExpiresIn) * time.Second),
	}
	if err := h.merchants.Save(c.Request.Context(), merchant); err != nil {
		slog.Error("Failed to save merchant", "handle", state, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save merchant"})
		return
	}

	c.Redirect(http.StatusFound, "/?connected=true&handle="+state)
}

// Health is a liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
