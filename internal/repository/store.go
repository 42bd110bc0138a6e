package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, allowing the same
// query set to run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries holds the hand-written query set for one connection scope.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns the query set bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// PostgresOrderStore owns order and settlement rows.
type PostgresOrderStore struct {
	db      *pgxpool.Pool
	queries *Queries
}

func NewPostgresOrderStore(db *pgxpool.Pool) *PostgresOrderStore {
	return &PostgresOrderStore{db: db, queries: New(db)}
}

func (s *PostgresOrderStore) Queries() OrderQuerier {
	return s.queries
}

// RunInTx executes fn within a database transaction. The transaction is
// rolled back when fn returns an error.
func (s *PostgresOrderStore) RunInTx(ctx context.Context, fn func(q OrderQuerier) error) error {
	return runInTx(ctx, s.db, func(q *Queries) error { return fn(q) })
}

// PostgresWalletStore owns wallet and wallet-transaction rows. It is kept
// separate from the order store so the two never share a transaction.
type PostgresWalletStore struct {
	db      *pgxpool.Pool
	queries *Queries
}

func NewPostgresWalletStore(db *pgxpool.Pool) *PostgresWalletStore {
	return &PostgresWalletStore{db: db, queries: New(db)}
}

func (s *PostgresWalletStore) Queries() WalletQuerier {
	return s.queries
}

func (s *PostgresWalletStore) RunInTx(ctx context.Context, fn func(q WalletQuerier) error) error {
	return runInTx(ctx, s.db, func(q *Queries) error { return fn(q) })
}

func runInTx(ctx context.Context, db *pgxpool.Pool, fn func(q *Queries) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(New(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func parseDecimal(column, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", column, err)
	}
	return d, nil
}
