package repository

import (
	"context"

	"github.com/chatline/backend/domain"
)

type MessageFilter struct {
	ChatID string
	Limit  int
	Offset int
}

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	List(ctx context.Context, filter MessageFilter) ([]domain.Message, error)
}
