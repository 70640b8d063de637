// Package ledger is the Postgres implementation of marketplace.Store.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/gigmarket/internal/marketplace"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool    *pgxpool.Pool
	q       querier
	channel string
}

var _ marketplace.Store = (*Store)(nil)

// New returns a Store that publishes order events on the given NOTIFY channel.
func New(pool *pgxpool.Pool, channel string) *Store {
	return &Store{pool: pool, q: pool, channel: channel}
}

// WithTx runs fn inside a read-committed transaction on its own connection.
// The connection goes back to the pool on every exit path.
func (s *Store) WithTx(ctx context.Context, fn func(tx marketplace.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&txStore{q: tx, channel: s.channel})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// notFound maps pgx.ErrNoRows to marketplace.ErrNotFound.
func notFound(err error, what string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, marketplace.ErrNotFound)
	}
	return fmt.Errorf("query %s %d: %w", what, id, err)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}
