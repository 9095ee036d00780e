package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatline/backend/repository"
)

// querier is the subset of pgx shared by pools and transactions, letting the
// same repository code run in either mode.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres-backed repository.Store and repository.TxRunner.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// NewStore creates a pool-backed store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (s *Store) Chats() repository.ChatRepository         { return &chatRepository{db: s.db} }
func (s *Store) Operators() repository.OperatorRepository { return &operatorRepository{db: s.db} }
func (s *Store) Messages() repository.MessageRepository   { return &messageRepository{db: s.db} }
func (s *Store) Outbox() repository.OutboxRepository      { return &outboxRepository{db: s.db} }

// WithinTx runs fn against a store bound to a single transaction. Any error
// rolls the whole unit back, entity writes and outbox appends alike.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st repository.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}

	txStore := &Store{pool: s.pool, db: tx}
	if err := fn(ctx, txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

var (
	_ repository.Store    = (*Store)(nil)
	_ repository.TxRunner = (*Store)(nil)
)
