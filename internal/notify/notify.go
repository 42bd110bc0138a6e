package notify

import (
	"context"

	"go.uber.org/zap"
)

// Message patterns consumed by the notification service.
const (
	PatternOrderNotification       = "send-order-notification"
	PatternTransactionNotification = "send-transaction-notification"
	PatternWalletNotification      = "send-wallet-notification"
)

// OrderEvent announces an order reaching a terminal state.
type OrderEvent struct {
	UserID       string         `json:"user_id"`
	OrderID      string         `json:"order_id"`
	Status       string         `json:"status"`
	Side         string         `json:"side"`
	FromCurrency string         `json:"from_currency"`
	ToCurrency   string         `json:"to_currency"`
	Email        string         `json:"email"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// TransactionEvent announces a settled fund movement.
type TransactionEvent struct {
	UserID        string         `json:"user_id"`
	TransactionID string         `json:"transaction_id"`
	Amount        string         `json:"amount"`
	Currency      string         `json:"currency"`
	Direction     string         `json:"direction"`
	Email         string         `json:"email"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// WalletEvent announces a wallet creation or balance movement.
type WalletEvent struct {
	UserID   string         `json:"user_id"`
	WalletID string         `json:"wallet_id"`
	Currency string         `json:"currency"`
	Action   string         `json:"action"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Bus emits events toward the notification pipeline. Callers treat emission
// as fire-and-forget: a returned error is logged, never propagated into the
// settlement outcome.
type Bus interface {
	Emit(ctx context.Context, pattern string, payload any) error
}

// LogBus writes events to the structured log. It is the default bus when no
// brokers are configured and keeps local development free of Kafka.
type LogBus struct {
	logger *zap.Logger
}

func NewLogBus(logger *zap.Logger) *LogBus {
	return &LogBus{logger: logger}
}

func (b *LogBus) Emit(_ context.Context, pattern string, payload any) error {
	if b == nil || b.logger == nil {
		return nil
	}
	b.logger.Info("notification", zap.String("pattern", pattern), zap.Any("payload", payload))
	return nil
}
