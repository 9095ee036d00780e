package repository

import (
	"context"

	"github.com/chatline/backend/domain"
)

// AppendEvents serializes drained aggregate events into the outbox through
// the given store. Called inside a transaction, it gives the write-ahead
// guarantee: the events are durable exactly when the state change is.
func AppendEvents(ctx context.Context, s Store, events []domain.Event) error {
	for _, event := range events {
		entry, err := domain.NewOutboxEntry(event)
		if err != nil {
			return err
		}
		if err := s.Outbox().Append(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}
