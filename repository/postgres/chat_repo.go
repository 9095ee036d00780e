package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository"
)

type chatRepository struct {
	db querier
}

const chatColumns = `id, title, type, status, initiator_id, assigned_operator_id, priority,
	last_activity_at, closed_at, close_reason, created_at, updated_at`

func (r *chatRepository) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	const query = `
	SELECT ` + chatColumns + `
	FROM chats
	WHERE id = $1
	`
	row := r.db.QueryRow(ctx, query, id)
	return scanChat(row)
}

func (r *chatRepository) List(ctx context.Context, filter repository.ChatFilter) ([]domain.Chat, error) {
	const query = `
	SELECT ` + chatColumns + `
	FROM chats
	WHERE ($1 = '' OR status = $1)
	  AND ($2 = '' OR assigned_operator_id = $2)
	ORDER BY priority DESC, created_at
	LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, string(filter.Status), filter.OperatorID, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectChats(rows)
}

func (r *chatRepository) ListInactive(ctx context.Context, threshold time.Duration, limit int) ([]domain.Chat, error) {
	const query = `
	SELECT ` + chatColumns + `
	FROM chats
	WHERE status = $1
	  AND last_activity_at < NOW() - make_interval(secs => $2)
	ORDER BY last_activity_at
	LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, string(domain.ChatStatusActive), threshold.Seconds(), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectChats(rows)
}

func (r *chatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	if chat == nil {
		return domain.ErrInvalidPayload
	}
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO chats (id, title, type, status, initiator_id, assigned_operator_id, priority,
		last_activity_at, closed_at, close_reason)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		chat.ID,
		chat.Title,
		string(chat.Type),
		string(chat.Status),
		chat.InitiatorID,
		chat.AssignedOperatorID,
		chat.Priority,
		chat.LastActivityAt,
		chat.ClosedAt,
		chat.CloseReason,
	).Scan(&chat.CreatedAt, &chat.UpdatedAt)
}

func (r *chatRepository) Update(ctx context.Context, chat *domain.Chat) error {
	if chat == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE chats
	SET status = $2,
		assigned_operator_id = $3,
		priority = $4,
		last_activity_at = $5,
		closed_at = $6,
		close_reason = $7,
		updated_at = NOW()
	WHERE id = $1
	RETURNING updated_at
	`
	if err := r.db.QueryRow(ctx, query,
		chat.ID,
		string(chat.Status),
		chat.AssignedOperatorID,
		chat.Priority,
		chat.LastActivityAt,
		chat.ClosedAt,
		chat.CloseReason,
	).Scan(&chat.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrChatNotFound
		}
		return err
	}
	return nil
}

func collectChats(rows pgx.Rows) ([]domain.Chat, error) {
	var chats []domain.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *chat)
	}
	return chats, rows.Err()
}

func scanChat(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Chat, error) {
	var chat domain.Chat
	var (
		chatType   string
		status     string
		operatorID *string
		closedAt   *time.Time
	)

	if err := row.Scan(
		&chat.ID,
		&chat.Title,
		&chatType,
		&status,
		&chat.InitiatorID,
		&operatorID,
		&chat.Priority,
		&chat.LastActivityAt,
		&closedAt,
		&chat.CloseReason,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChatNotFound
		}
		return nil, err
	}

	chat.Type = domain.ChatType(chatType)
	chat.Status = domain.ChatStatus(status)
	chat.AssignedOperatorID = operatorID
	chat.ClosedAt = closedAt

	return &chat, nil
}
