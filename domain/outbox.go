package domain

import (
	"encoding/json"
	"time"
)

// OutboxEntry stages a domain event in the same transaction as the state
// change that produced it. Immutable once created except for the claim,
// retry and processed fields, which the consumer owns.
type OutboxEntry struct {
	ID            string          `json:"id"`
	EventType     EventKind       `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	CreatedAt     time.Time       `json:"created_at"`
	Processed     bool            `json:"processed"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	RetryCount    int             `json:"retry_count"`
	InstanceID    string          `json:"instance_id,omitempty"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
}

// NewOutboxEntry serializes a domain event into an outbox row.
func NewOutboxEntry(event Event) (*OutboxEntry, error) {
	payload, err := event.MarshalPayload()
	if err != nil {
		return nil, WrapError(ErrCodeInternal, "marshal event payload", err)
	}
	return &OutboxEntry{
		ID:            event.ID,
		EventType:     event.Kind,
		Payload:       payload,
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		CreatedAt:     event.OccurredAt,
	}, nil
}

// MarkProcessed stamps successful delivery and clears any previous error.
func (e *OutboxEntry) MarkProcessed() {
	now := time.Now().UTC()
	e.Processed = true
	e.ProcessedAt = &now
	e.LastError = ""
}

// MarkFailed records a delivery failure.
func (e *OutboxEntry) MarkFailed(errMsg string) {
	e.LastError = errMsg
	e.RetryCount++
}

// CanBeRetried reports whether the entry is still within the retry budget.
func (e *OutboxEntry) CanBeRetried(maxRetries int) bool {
	return e.RetryCount < maxRetries
}

// Claim stamps optimistic ownership by a consumer instance.
func (e *OutboxEntry) Claim(instanceID string) {
	now := time.Now().UTC()
	e.InstanceID = instanceID
	e.ClaimedAt = &now
}

// ClaimExpired reports whether a previous claim went stale, making the entry
// eligible for another consumer.
func (e *OutboxEntry) ClaimExpired(timeout time.Duration) bool {
	return e.ClaimedAt != nil && time.Since(*e.ClaimedAt) > timeout
}
