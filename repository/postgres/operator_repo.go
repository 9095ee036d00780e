package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chatline/backend/domain"
)

type operatorRepository struct {
	db querier
}

const operatorColumns = `id, user_id, display_name, email, status, is_online,
	current_chat_count, max_concurrent_chats, last_active_at, skills, created_at, updated_at`

func (r *operatorRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	const query = `
	SELECT ` + operatorColumns + `
	FROM operators
	WHERE id = $1
	`
	row := r.db.QueryRow(ctx, query, id)
	return scanOperator(row)
}

func (r *operatorRepository) GetByUserID(ctx context.Context, userID string) (*domain.Operator, error) {
	const query = `
	SELECT ` + operatorColumns + `
	FROM operators
	WHERE user_id = $1
	`
	row := r.db.QueryRow(ctx, query, userID)
	return scanOperator(row)
}

func (r *operatorRepository) ListAvailable(ctx context.Context) ([]domain.Operator, error) {
	const query = `
	SELECT ` + operatorColumns + `
	FROM operators
	WHERE is_online
	  AND status = $1
	  AND current_chat_count < max_concurrent_chats
	ORDER BY current_chat_count
	`
	rows, err := r.db.Query(ctx, query, string(domain.OperatorStatusAvailable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var operators []domain.Operator
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		operators = append(operators, *op)
	}
	return operators, rows.Err()
}

func (r *operatorRepository) Create(ctx context.Context, operator *domain.Operator) error {
	if operator == nil {
		return domain.ErrInvalidPayload
	}
	if operator.ID == "" {
		operator.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO operators (id, user_id, display_name, email, status, is_online,
		current_chat_count, max_concurrent_chats, last_active_at, skills)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		operator.ID,
		operator.UserID,
		operator.DisplayName,
		operator.Email,
		string(operator.Status),
		operator.IsOnline,
		operator.CurrentChatCount,
		operator.MaxConcurrentChats,
		operator.LastActiveAt,
		marshalStrings(operator.Skills),
	).Scan(&operator.CreatedAt, &operator.UpdatedAt)
}

func (r *operatorRepository) Update(ctx context.Context, operator *domain.Operator) error {
	if operator == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE operators
	SET display_name = $2,
		email = $3,
		status = $4,
		is_online = $5,
		current_chat_count = $6,
		max_concurrent_chats = $7,
		last_active_at = $8,
		skills = $9,
		updated_at = NOW()
	WHERE id = $1
	RETURNING updated_at
	`
	if err := r.db.QueryRow(ctx, query,
		operator.ID,
		operator.DisplayName,
		operator.Email,
		string(operator.Status),
		operator.IsOnline,
		operator.CurrentChatCount,
		operator.MaxConcurrentChats,
		operator.LastActiveAt,
		marshalStrings(operator.Skills),
	).Scan(&operator.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrOperatorNotFound
		}
		return err
	}
	return nil
}

// AcquireSlot is the commit-time capacity check. The conditional UPDATE is
// atomic at the store, so two racing assignments can never both take the
// last slot: one updates zero rows and reports false.
func (r *operatorRepository) AcquireSlot(ctx context.Context, id string) (bool, error) {
	const query = `
	UPDATE operators
	SET current_chat_count = current_chat_count + 1,
		status = CASE
			WHEN current_chat_count + 1 >= max_concurrent_chats THEN 'busy'
			ELSE 'available'
		END,
		last_active_at = NOW(),
		updated_at = NOW()
	WHERE id = $1
	  AND is_online
	  AND status = 'available'
	  AND current_chat_count < max_concurrent_chats
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *operatorRepository) ReleaseSlot(ctx context.Context, id string) error {
	const query = `
	UPDATE operators
	SET current_chat_count = GREATEST(current_chat_count - 1, 0),
		status = CASE
			WHEN NOT is_online THEN status
			WHEN GREATEST(current_chat_count - 1, 0) >= max_concurrent_chats THEN 'busy'
			ELSE 'available'
		END,
		last_active_at = NOW(),
		updated_at = NOW()
	WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOperatorNotFound
	}
	return nil
}

func scanOperator(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Operator, error) {
	var op domain.Operator
	var (
		status       string
		lastActiveAt *time.Time
		skills       []byte
	)

	if err := row.Scan(
		&op.ID,
		&op.UserID,
		&op.DisplayName,
		&op.Email,
		&status,
		&op.IsOnline,
		&op.CurrentChatCount,
		&op.MaxConcurrentChats,
		&lastActiveAt,
		&skills,
		&op.CreatedAt,
		&op.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOperatorNotFound
		}
		return nil, err
	}

	op.Status = domain.OperatorStatus(status)
	op.LastActiveAt = lastActiveAt
	op.Skills = unmarshalStrings(skills)

	return &op, nil
}
