package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vitrina-app/vitrina/internal/models"
)

// RequestLifecycle drives the status of a catalog request. A failed status
// write is fatal to the run: without it the run's outcome cannot be proven
// to watchers, so the error is surfaced rather than swallowed.
type RequestLifecycle struct {
	requests RequestStore
}

func NewRequestLifecycle(requests RequestStore) *RequestLifecycle {
	return &RequestLifecycle{requests: requests}
}

// Transition sets the request's status unconditionally and persists it.
func (l *RequestLifecycle) Transition(ctx context.Context, requestID string, status models.RequestStatus) error {
	if err := l.requests.UpdateStatus(ctx, requestID, status); err != nil {
		return fmt.Errorf("failed to transition request %s to %s: %w", requestID, status, err)
	}
	slog.Info("Request status updated.", "requestId", requestID, "status", status)
	return nil
}
