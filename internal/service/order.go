package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxmarket/forex-marketplace/internal/cache"
	"github.com/fxmarket/forex-marketplace/internal/directory"
	"github.com/fxmarket/forex-marketplace/internal/domain"
	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/fxmarket/forex-marketplace/internal/notify"
	"github.com/fxmarket/forex-marketplace/internal/observability"
	"github.com/fxmarket/forex-marketplace/internal/rate"
	"github.com/fxmarket/forex-marketplace/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService drives an order from PENDING to a terminal state. The two
// wallet movements it issues are independent ledger commits outside the
// order transaction; see settle for the resulting failure semantics.
type OrderService struct {
	store     repository.OrderStore
	ledger    Ledger
	rates     rate.Provider
	directory directory.Directory
	bus       notify.Bus
	cache     cache.Cache
	orderTTL  time.Duration
	listTTL   time.Duration
}

func NewOrderService(
	store repository.OrderStore,
	ledger Ledger,
	rates rate.Provider,
	dir directory.Directory,
	bus notify.Bus,
	c cache.Cache,
) *OrderService {
	return &OrderService{
		store:     store,
		ledger:    ledger,
		rates:     rates,
		directory: dir,
		bus:       bus,
		cache:     c,
		orderTTL:  10 * time.Minute,
		listTTL:   5 * time.Minute,
	}
}

// WithCacheTTLs overrides the order and order-listing cache TTLs.
func (s *OrderService) WithCacheTTLs(order, list time.Duration) *OrderService {
	s.orderTTL = order
	s.listTTL = list
	return s
}

// CreateOrderInput carries a priced-conversion request.
type CreateOrderInput struct {
	UserID       uuid.UUID
	Side         string
	FromCurrency string
	ToCurrency   string
	FromAmount   decimal.Decimal
}

func (in *CreateOrderInput) validate() error {
	in.FromCurrency = normalizeCurrency(in.FromCurrency)
	in.ToCurrency = normalizeCurrency(in.ToCurrency)
	if in.FromCurrency == "" || in.ToCurrency == "" {
		return models.ErrInvalidCurrency
	}
	if !domain.ValidSide(in.Side) {
		return fmt.Errorf("unknown order side %q", in.Side)
	}
	if !domain.Positive(in.FromAmount) {
		return models.ErrInvalidAmount
	}
	return nil
}

// CreateOrder snapshots the current rate, persists a PENDING order, and
// settles it synchronously. The rate is fetched exactly once; settlement
// never re-prices. When the pair is unknown no order row is written.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	quote, err := s.rates.GetRate(ctx, in.FromCurrency, in.ToCurrency)
	if err != nil {
		if errors.Is(err, rate.ErrPairNotFound) {
			return nil, fmt.Errorf("%s/%s: %w", in.FromCurrency, in.ToCurrency, models.ErrPairNotTradeable)
		}
		return nil, fmt.Errorf("rate lookup %s/%s: %w", in.FromCurrency, in.ToCurrency, err)
	}

	order := &models.Order{
		ID:           uuid.New(),
		UserID:       in.UserID,
		Side:         in.Side,
		FromCurrency: in.FromCurrency,
		ToCurrency:   in.ToCurrency,
		FromAmount:   in.FromAmount,
		ToAmount:     domain.Convert(in.FromAmount, quote.Rate),
		Rate:         quote.Rate,
		Status:       domain.OrderStatusPending,
	}
	if err := s.store.Queries().CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	if settleErr := s.settle(ctx, order.ID); settleErr != nil {
		// The order has been durably marked FAILED (or left terminal by a
		// concurrent settlement); the caller still gets the original error.
		if err := s.cache.Delete(ctx, cache.OrdersByUserKey(in.UserID.String())); err != nil {
			zap.L().Warn("order list cache invalidation failed", zap.Error(err), zap.String("order_id", order.ID.String()))
		}
		return nil, settleErr
	}

	if err := s.cache.Delete(ctx, cache.OrdersByUserKey(in.UserID.String())); err != nil {
		return nil, err
	}
	return s.store.Queries().GetOrder(ctx, order.ID)
}

// settle runs the settlement state machine for one order.
//
// The order row lock is held for the whole attempt, including the two
// remote ledger calls. The debit and the credit are separate, already
// committed ledger transactions: rolling back the order transaction does
// NOT restore them. In particular, a credit failure after a successful
// debit leaves the source wallet debited with the order FAILED. That gap
// is inherited behavior, kept deliberately instead of papering over it
// with a compensation step that the upstream contract does not promise.
func (s *OrderService) settle(ctx context.Context, orderID uuid.UUID) error {
	var settled *models.Order
	var debit *models.WalletTransaction

	txErr := s.store.RunInTx(ctx, func(q repository.OrderQuerier) error {
		order, err := q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending {
			return &models.OrderConflictError{Status: order.Status}
		}

		fromWallet, err := s.ledger.ResolveOrCreate(ctx, order.UserID, order.FromCurrency)
		if err != nil {
			return s.failInTx(ctx, q, order.ID, fmt.Errorf("resolve %s wallet: %w", order.FromCurrency, err))
		}
		toWallet, err := s.ledger.ResolveOrCreate(ctx, order.UserID, order.ToCurrency)
		if err != nil {
			return s.failInTx(ctx, q, order.ID, fmt.Errorf("resolve %s wallet: %w", order.ToCurrency, err))
		}

		// Pre-check before any ledger call so an underfunded order fails
		// without producing wallet transactions.
		if fromWallet.Balance.LessThan(order.FromAmount) {
			return s.failInTx(ctx, q, order.ID, models.ErrInsufficientFunds)
		}

		description := fmt.Sprintf("Forex order: %s to %s", order.FromCurrency, order.ToCurrency)
		debit, err = s.ledger.ApplyMovement(ctx, MovementInput{
			WalletID:    fromWallet.ID,
			Direction:   domain.DirectionDebit,
			Amount:      order.FromAmount,
			Description: description,
			ReferenceID: order.ID.String(),
		})
		if err != nil {
			return s.failInTx(ctx, q, order.ID, fmt.Errorf("debit %s wallet: %w", order.FromCurrency, err))
		}

		if _, err = s.ledger.ApplyMovement(ctx, MovementInput{
			WalletID:    toWallet.ID,
			Direction:   domain.DirectionCredit,
			Amount:      order.ToAmount,
			Description: description,
			ReferenceID: order.ID.String(),
		}); err != nil {
			// The debit above is already committed; see the function comment.
			return s.failInTx(ctx, q, order.ID, fmt.Errorf("credit %s wallet: %w", order.ToCurrency, err))
		}

		if err := q.CreateSettlement(ctx, &models.Settlement{
			ID:           uuid.New(),
			OrderID:      order.ID,
			FromWalletID: fromWallet.ID,
			ToWalletID:   toWallet.ID,
			FromAmount:   order.FromAmount,
			ToAmount:     order.ToAmount,
			Rate:         order.Rate,
		}); err != nil {
			return err
		}

		rows, err := q.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCompleted)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "mark order completed"); err != nil {
			return err
		}
		order.Status = domain.OrderStatusCompleted
		settled = order
		return nil
	})
	if txErr != nil {
		s.markFailed(ctx, orderID, txErr)
		observability.IncrementSettlement(settlementResult(txErr))
		return txErr
	}

	observability.IncrementSettlement("completed")
	if err := s.cache.Delete(ctx,
		cache.OrderKey(orderID.String()),
		cache.OrdersByUserKey(settled.UserID.String()),
	); err != nil {
		return err
	}
	s.notifySettled(ctx, settled, debit)
	return nil
}

// failInTx persists FAILED inside the open transaction and returns err.
// The rollback triggered by err undoes that write; markFailed re-applies it
// durably afterwards. The in-transaction write mirrors the upstream flow
// and keeps the terminal state visible to statements later in the tx.
func (s *OrderService) failInTx(ctx context.Context, q repository.OrderQuerier, orderID uuid.UUID, err error) error {
	if _, updateErr := q.UpdateOrderStatus(ctx, orderID, domain.OrderStatusFailed); updateErr != nil {
		zap.L().Error("in-transaction failure write failed", zap.Error(updateErr), zap.String("order_id", orderID.String()))
	}
	return err
}

// markFailed durably records the failure after the settlement transaction
// rolled back. Conflicts and missing orders are left untouched: the order
// is only failed if it is still PENDING. Everything here is best-effort;
// the original settlement error is what the caller sees.
func (s *OrderService) markFailed(ctx context.Context, orderID uuid.UUID, cause error) {
	order, err := s.store.Queries().GetOrder(ctx, orderID)
	if err != nil {
		zap.L().Error("failed order re-read failed", zap.Error(err), zap.String("order_id", orderID.String()))
		return
	}
	if order.Status != domain.OrderStatusPending {
		return
	}

	if _, err := s.store.Queries().UpdateOrderStatus(ctx, orderID, domain.OrderStatusFailed); err != nil {
		zap.L().Error("failure status write failed", zap.Error(err), zap.String("order_id", orderID.String()))
		return
	}
	if err := s.cache.Delete(ctx,
		cache.OrderKey(orderID.String()),
		cache.OrdersByUserKey(order.UserID.String()),
	); err != nil {
		zap.L().Warn("failed order cache invalidation failed", zap.Error(err), zap.String("order_id", orderID.String()))
	}

	email := s.lookupEmail(ctx, order.UserID)
	event := notify.OrderEvent{
		UserID:       order.UserID.String(),
		OrderID:      order.ID.String(),
		Status:       domain.OrderStatusFailed,
		Side:         order.Side,
		FromCurrency: order.FromCurrency,
		ToCurrency:   order.ToCurrency,
		Email:        email,
		Metadata:     map[string]any{"error": sanitizeFailureReason(cause)},
	}
	if err := s.bus.Emit(ctx, notify.PatternOrderNotification, event); err != nil {
		zap.L().Warn("order failure notification emit failed", zap.Error(err), zap.String("order_id", orderID.String()))
	}
}

// notifySettled emits the post-commit debit and completion notifications.
// Failures are logged and never alter the committed outcome.
func (s *OrderService) notifySettled(ctx context.Context, order *models.Order, debit *models.WalletTransaction) {
	email := s.lookupEmail(ctx, order.UserID)

	txnEvent := notify.TransactionEvent{
		UserID:    order.UserID.String(),
		Amount:    order.FromAmount.String(),
		Currency:  order.FromCurrency,
		Direction: domain.DirectionDebit,
		Email:     email,
		Metadata: map[string]any{
			"order_id":      order.ID.String(),
			"from_currency": order.FromCurrency,
			"to_currency":   order.ToCurrency,
			"from_amount":   order.FromAmount.String(),
			"to_amount":     order.ToAmount.String(),
		},
	}
	if debit != nil {
		txnEvent.TransactionID = debit.ID.String()
	}
	if err := s.bus.Emit(ctx, notify.PatternTransactionNotification, txnEvent); err != nil {
		zap.L().Warn("transaction notification emit failed", zap.Error(err), zap.String("order_id", order.ID.String()))
	}

	orderEvent := notify.OrderEvent{
		UserID:       order.UserID.String(),
		OrderID:      order.ID.String(),
		Status:       domain.OrderStatusCompleted,
		Side:         order.Side,
		FromCurrency: order.FromCurrency,
		ToCurrency:   order.ToCurrency,
		Email:        email,
		Metadata: map[string]any{
			"from_amount": order.FromAmount.String(),
			"to_amount":   order.ToAmount.String(),
			"rate":        order.Rate.String(),
		},
	}
	if err := s.bus.Emit(ctx, notify.PatternOrderNotification, orderEvent); err != nil {
		zap.L().Warn("order notification emit failed", zap.Error(err), zap.String("order_id", order.ID.String()))
	}
}

// lookupEmail resolves the user's email, best-effort.
func (s *OrderService) lookupEmail(ctx context.Context, userID uuid.UUID) string {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		zap.L().Warn("user email lookup failed", zap.Error(err), zap.String("user_id", userID.String()))
		return ""
	}
	return user.Email
}

// GetOrder returns one order through the read-through cache.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.cache.GetOrSet(ctx, cache.OrderKey(id.String()), s.orderTTL, &order, func(ctx context.Context) (any, error) {
		return s.store.Queries().GetOrder(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns the user's orders, newest first, through the cache.
func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := s.cache.GetOrSet(ctx, cache.OrdersByUserKey(userID.String()), s.listTTL, &orders, func(ctx context.Context) (any, error) {
		return s.store.Queries().ListOrdersByUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrderSettlements returns the settlement rows recorded for an order.
func (s *OrderService) GetOrderSettlements(ctx context.Context, orderID uuid.UUID) ([]models.Settlement, error) {
	if _, err := s.store.Queries().GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.Queries().ListSettlementsByOrder(ctx, orderID)
}

// sanitizeFailureReason maps internal errors to client-safe notification
// text. Transport-level details never leak into outbound events.
func sanitizeFailureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientFunds):
		return models.ErrInsufficientFunds.Error()
	case errors.Is(err, models.ErrPairNotTradeable), errors.Is(err, rate.ErrPairNotFound), errors.Is(err, models.ErrInvalidCurrency):
		return models.ErrPairNotTradeable.Error()
	case errors.Is(err, models.ErrWalletNotFound):
		return models.ErrWalletNotFound.Error()
	case errors.Is(err, models.ErrUpstreamUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return models.ErrUpstreamUnavailable.Error()
	default:
		return "order could not be completed"
	}
}

func settlementResult(err error) string {
	switch {
	case models.IsConflict(err):
		return "conflict"
	case errors.Is(err, models.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "failed"
	}
}
