package port

import (
	"context"
	"time"

	"craftedge.io/chatsync/internal/core/domain"
)

// SyncService runs batch reconciliation against the external chat API.
type SyncService interface {
	// Run executes a full sync synchronously and returns its summary.
	Run(ctx context.Context, scope string, maxDate *time.Time) (*domain.SyncResult, error)

	// Launch acquires the lock and resolves the cursor synchronously so
	// contention surfaces to the caller, then processes pages in the
	// background. Returns the job id for status polling.
	Launch(ctx context.Context, scope string, maxDate *time.Time) (string, error)

	Status(ctx context.Context, taskID string) (*domain.SyncCursor, error)
}

// WebhookService applies one normalized platform event. Safe to call
// concurrently for different entities and redundantly for the same event;
// an error means the event was not durably applied and the platform should
// redeliver it.
type WebhookService interface {
	Handle(ctx context.Context, upd *domain.Update) error
}
