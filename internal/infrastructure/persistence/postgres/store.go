package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servilink/escrow-engine/internal/application"
)

// Store binds the repositories to one executor: the pool by default, a single
// transaction inside WithTx.
type Store struct {
	pool *pgxpool.Pool
	q    Executor
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

func (s *Store) Payments() application.PaymentRepository {
	return NewPaymentRepository(s.q)
}

func (s *Store) Escrows() application.EscrowRepository {
	return NewEscrowRepository(s.q)
}

func (s *Store) Events() application.EventStore {
	return NewEventRepository(s.q)
}

// WithTx runs fn against a store bound to a single transaction. Nested calls
// reuse the enclosing transaction rather than opening a second one.
func (s *Store) WithTx(ctx context.Context, fn func(application.Store) error) error {
	if _, ok := s.q.(pgx.Tx); ok {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

var _ application.Store = (*Store)(nil)
