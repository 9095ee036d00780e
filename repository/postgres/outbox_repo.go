package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chatline/backend/domain"
)

type outboxRepository struct {
	db querier
}

func (r *outboxRepository) Append(ctx context.Context, entry *domain.OutboxEntry) error {
	if entry == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO outbox_entries (id, event_type, payload, aggregate_id, aggregate_type, created_at)
	VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID,
		string(entry.EventType),
		[]byte(entry.Payload),
		entry.AggregateID,
		entry.AggregateType,
		nullTime(entry.CreatedAt),
	)
	return err
}

// ClaimBatch stamps ownership in a single statement so two consumer
// instances can never hold the same entry within one claim window.
func (r *outboxRepository) ClaimBatch(ctx context.Context, instanceID string, limit, maxRetries int, claimTimeout time.Duration) ([]domain.OutboxEntry, error) {
	const query = `
	UPDATE outbox_entries
	SET instance_id = $1, claimed_at = NOW()
	WHERE id IN (
		SELECT id
		FROM outbox_entries
		WHERE NOT processed
		  AND retry_count < $2
		  AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $3))
		ORDER BY created_at
		LIMIT $4
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id, event_type, payload, aggregate_id, aggregate_type, created_at,
		processed, processed_at, last_error, retry_count, instance_id, claimed_at
	`
	rows, err := r.db.Query(ctx, query, instanceID, maxRetries, claimTimeout.Seconds(), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id string) error {
	const query = `
	UPDATE outbox_entries
	SET processed = TRUE, processed_at = NOW(), last_error = ''
	WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NewError(domain.ErrCodeNotFound, "outbox entry not found")
	}
	return nil
}

// MarkFailed records the failure and releases the claim so the entry can be
// retried on a later pass. Once retry_count reaches the limit the entry is
// no longer claimable and stays parked for manual inspection.
func (r *outboxRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	const query = `
	UPDATE outbox_entries
	SET last_error = $2, retry_count = retry_count + 1, instance_id = NULL, claimed_at = NULL
	WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NewError(domain.ErrCodeNotFound, "outbox entry not found")
	}
	return nil
}

func scanOutboxEntry(row interface {
	Scan(dest ...interface{}) error
}) (*domain.OutboxEntry, error) {
	var entry domain.OutboxEntry
	var (
		eventType   string
		payload     []byte
		processedAt *time.Time
		instanceID  *string
		claimedAt   *time.Time
	)

	if err := row.Scan(
		&entry.ID,
		&eventType,
		&payload,
		&entry.AggregateID,
		&entry.AggregateType,
		&entry.CreatedAt,
		&entry.Processed,
		&processedAt,
		&entry.LastError,
		&entry.RetryCount,
		&instanceID,
		&claimedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.ErrCodeNotFound, "outbox entry not found")
		}
		return nil, err
	}

	entry.EventType = domain.EventKind(eventType)
	entry.Payload = make([]byte, len(payload))
	copy(entry.Payload, payload)
	entry.ProcessedAt = processedAt
	if instanceID != nil {
		entry.InstanceID = *instanceID
	}
	entry.ClaimedAt = claimedAt

	return &entry, nil
}
