package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository"
)

type messageRepository struct {
	db querier
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	if message == nil {
		return domain.ErrInvalidPayload
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO messages (id, chat_id, sender_id, body, sent_at)
	VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
	`
	_, err := r.db.Exec(ctx, query,
		message.ID,
		message.ChatID,
		message.SenderID,
		message.Body,
		nullTime(message.SentAt),
	)
	return err
}

func (r *messageRepository) List(ctx context.Context, filter repository.MessageFilter) ([]domain.Message, error) {
	const query = `
	SELECT id, chat_id, sender_id, body, sent_at
	FROM messages
	WHERE chat_id = $1
	ORDER BY sent_at DESC
	LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, filter.ChatID, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
