package repository

import (
	"context"

	"github.com/chatline/backend/domain"
)

type OperatorRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Operator, error)
	// ListAvailable returns operators that are online, available and under
	// their concurrent-chat cap according to the persisted ledger.
	ListAvailable(ctx context.Context) ([]domain.Operator, error)
	Create(ctx context.Context, operator *domain.Operator) error
	Update(ctx context.Context, operator *domain.Operator) error

	// AcquireSlot atomically increments the operator's chat count, but only
	// while the operator can still accept a chat. It reports false when the
	// slot was not taken, which is how a lost assignment race surfaces.
	AcquireSlot(ctx context.Context, id string) (bool, error)
	// ReleaseSlot atomically decrements the chat count, floored at zero.
	ReleaseSlot(ctx context.Context, id string) error
}
