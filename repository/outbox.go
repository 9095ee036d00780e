package repository

import (
	"context"
	"time"

	"github.com/chatline/backend/domain"
)

type OutboxRepository interface {
	Append(ctx context.Context, entry *domain.OutboxEntry) error
	// ClaimBatch atomically stamps up to limit unprocessed entries with the
	// consumer's instance id and claim time, skipping entries whose retry
	// budget is spent and entries claimed within claimTimeout by another
	// live consumer. Expired claims are reclaimable.
	ClaimBatch(ctx context.Context, instanceID string, limit, maxRetries int, claimTimeout time.Duration) ([]domain.OutboxEntry, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}
