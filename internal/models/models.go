package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is a directory record used for auth and notification enrichment.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Order is one currency-conversion request. ToAmount and Rate are computed
// once at creation and never re-derived during settlement.
type Order struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Side         string          `json:"side"` // BUY or SELL
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	ToAmount     decimal.Decimal `json:"to_amount"`
	Rate         decimal.Decimal `json:"rate"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Settlement is the immutable record of one completed fund movement,
// created exactly once per order that reaches COMPLETED.
type Settlement struct {
	ID           uuid.UUID       `json:"id"`
	OrderID      uuid.UUID       `json:"order_id"`
	FromWalletID uuid.UUID       `json:"from_wallet_id"`
	ToWalletID   uuid.UUID       `json:"to_wallet_id"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	ToAmount     decimal.Decimal `json:"to_amount"`
	Rate         decimal.Decimal `json:"rate"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Wallet is a per-user, per-currency balance account. (UserID, Currency)
// is unique; the balance never goes negative.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// WalletTransaction is one immutable debit or credit against a wallet.
// Amount is always positive; Direction carries the sign.
type WalletTransaction struct {
	ID          uuid.UUID       `json:"id"`
	WalletID    uuid.UUID       `json:"wallet_id"`
	Direction   string          `json:"direction"` // CREDIT or DEBIT
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ReferenceID string          `json:"reference_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ForexRate is a stored snapshot of one currency pair.
type ForexRate struct {
	ID             uuid.UUID       `json:"id"`
	BaseCurrency   string          `json:"base_currency"`
	TargetCurrency string          `json:"target_currency"`
	Rate           decimal.Decimal `json:"rate"`
	Timestamp      time.Time       `json:"timestamp"`
}
