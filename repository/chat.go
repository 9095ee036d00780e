package repository

import (
	"context"
	"time"

	"github.com/chatline/backend/domain"
)

type ChatFilter struct {
	Status     domain.ChatStatus
	OperatorID string
	Limit      int
	Offset     int
}

type ChatRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Chat, error)
	List(ctx context.Context, filter ChatFilter) ([]domain.Chat, error)
	// ListInactive returns active chats whose last activity is older than
	// the threshold, oldest first.
	ListInactive(ctx context.Context, threshold time.Duration, limit int) ([]domain.Chat, error)
	Create(ctx context.Context, chat *domain.Chat) error
	Update(ctx context.Context, chat *domain.Chat) error
}
