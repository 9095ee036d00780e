package repository

import "context"

// Store bundles the entity repositories that share one persistence backend.
// Outside a transaction the repositories operate on the pool; inside
// WithinTx they are bound to the transaction.
type Store interface {
	Chats() ChatRepository
	Operators() OperatorRepository
	Messages() MessageRepository
	Outbox() OutboxRepository
}

// TxRunner is the unit-of-work boundary. The callback receives a Store bound
// to a single transaction; returning an error rolls everything back, so no
// partial entity or outbox mutation survives.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
