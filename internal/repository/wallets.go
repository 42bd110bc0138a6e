package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

const walletColumns = `id, user_id, currency, balance::text, created_at, updated_at`

// CreateWallet inserts a wallet row. A losing create race surfaces as
// ErrWalletExists via the (user_id, currency) unique constraint.
func (q *Queries) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	query := `INSERT INTO wallets (id, user_id, currency, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query, wallet.ID, wallet.UserID, wallet.Currency, wallet.Balance.String()).
		Scan(&wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.ErrWalletExists
		}
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

func (q *Queries) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	row := q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
	return scanWallet(row)
}

func (q *Queries) GetWalletForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	row := q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id)
	return scanWallet(row)
}

func (q *Queries) GetWalletByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	row := q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 AND currency = $2`, userID, currency)
	return scanWallet(row)
}

func (q *Queries) ListWalletsByUser(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	rows, err := q.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *wallet)
	}
	return wallets, rows.Err()
}

func (q *Queries) UpdateWalletBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2`, balance.String(), id)
	if err != nil {
		return 0, fmt.Errorf("update wallet balance: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CreateWalletTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	query := `INSERT INTO wallet_transactions (id, wallet_id, direction, amount, description, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NOW())
		RETURNING created_at`
	err := q.db.QueryRow(ctx, query, txn.ID, txn.WalletID, txn.Direction, txn.Amount.String(), txn.Description, txn.ReferenceID).
		Scan(&txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("create wallet transaction: %w", err)
	}
	return nil
}

func (q *Queries) ListWalletTransactions(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error) {
	query := `SELECT id, wallet_id, direction, amount::text, description, COALESCE(reference_id, ''), created_at
		FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at DESC`
	rows, err := q.db.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.WalletTransaction
	for rows.Next() {
		var txn models.WalletTransaction
		var amount string
		if err := rows.Scan(&txn.ID, &txn.WalletID, &txn.Direction, &amount, &txn.Description, &txn.ReferenceID, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}
		if txn.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	wallet := &models.Wallet{}
	var balance string
	err := row.Scan(&wallet.ID, &wallet.UserID, &wallet.Currency, &balance, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrWalletNotFound
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	if wallet.Balance, err = parseDecimal("balance", balance); err != nil {
		return nil, err
	}
	return wallet, nil
}
