// Package postgres implements the repository ports on database/sql with the
// lib/pq driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories"
)

// PostgreSQL error codes the store reacts to
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Store runs units of work against PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new PostgreSQL backed store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a transaction. The transaction is committed if fn
// returns nil and rolled back otherwise, including on panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx repositories.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}

	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(&txRepos{q: sqlTx}); err != nil {
		return mapError(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	committed = true

	return nil
}

type txRepos struct {
	q DBTX
}

func (t *txRepos) Inventory() repositories.InventoryRepository { return NewInventoryRepository(t.q) }
func (t *txRepos) Carts() repositories.CartRepository          { return NewCartRepository(t.q) }
func (t *txRepos) Orders() repositories.OrderRepository        { return NewOrderRepository(t.q) }
func (t *txRepos) Payments() repositories.PaymentRepository    { return NewPaymentRepository(t.q) }
func (t *txRepos) Loyalty() repositories.LoyaltyRepository     { return NewLoyaltyRepository(t.q) }
func (t *txRepos) Rewards() repositories.RewardRepository      { return NewRewardRepository(t.q) }
func (t *txRepos) Outbox() repositories.OutboxRepository       { return NewOutboxRepository(t.q) }

// mapError turns storage-level conflicts into ErrConcurrentModification so
// callers can retry the whole operation.
func mapError(err error) error {
	if err == nil || errors.Is(err, models.ErrConcurrentModification) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", models.ErrConcurrentModification, pqErr.Message)
		}
	}

	return err
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
