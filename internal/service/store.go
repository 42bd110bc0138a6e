package service

import (
	"context"

	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is the orchestrator's view of the wallet service. In a single-binary
// deployment WalletService satisfies it directly; split out, an RPC client
// would. Either way its movements commit independently of the order store:
// the orchestrator's transaction can never roll a movement back.
type Ledger interface {
	GetWalletByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error)
	CreateWallet(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error)
	ResolveOrCreate(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error)
	ApplyMovement(ctx context.Context, in MovementInput) (*models.WalletTransaction, error)
}

// MovementInput describes one debit or credit to apply atomically.
type MovementInput struct {
	WalletID    uuid.UUID
	Direction   string
	Amount      decimal.Decimal
	Description string
	ReferenceID string
}
