package repository

import (
	"context"

	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderQuerier is the data-access contract for the order store. Implementations
// return models sentinel errors (ErrOrderNotFound) rather than driver errors.
type OrderQuerier interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// GetOrderForUpdate acquires an exclusive row lock on the order. It is
	// only meaningful inside RunInTx; the lock is held until commit/rollback.
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (int64, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error
	ListSettlementsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Settlement, error)
}

// WalletQuerier is the data-access contract for the wallet store.
type WalletQuerier interface {
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetWalletForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetWalletByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error)
	ListWalletsByUser(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error)
	UpdateWalletBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (int64, error)
	CreateWalletTransaction(ctx context.Context, txn *models.WalletTransaction) error
	ListWalletTransactions(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error)
}

// OrderStore scopes order queries to an optional database transaction.
type OrderStore interface {
	Queries() OrderQuerier
	RunInTx(ctx context.Context, fn func(q OrderQuerier) error) error
}

// WalletStore scopes wallet queries to an optional database transaction.
// It is deliberately a separate store from OrderStore: the settlement
// orchestrator must never enlist wallet writes in the order transaction.
type WalletStore interface {
	Queries() WalletQuerier
	RunInTx(ctx context.Context, fn func(q WalletQuerier) error) error
}
