package repository

import (
	"context"
	"time"
)

// PresenceRepository tracks which operators are reachable right now. Entries
// are TTL-bounded so a crashed process's presence expires on its own. The
// cache is the source of truth for routing; the persisted IsOnline flag is
// a best-effort mirror.
type PresenceRepository interface {
	SetOperatorOnline(ctx context.Context, operatorID, connectionID string) error
	SetOperatorOffline(ctx context.Context, operatorID string) error
	OnlineOperators(ctx context.Context) ([]string, error)
	IsOperatorOnline(ctx context.Context, operatorID string) (bool, error)
	ConnectionID(ctx context.Context, operatorID string) (string, error)

	// Auxiliary key/value and counter primitives backed by the same store.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Increment(ctx context.Context, key string) (int64, error)
	Decrement(ctx context.Context, key string) (int64, error)
}
