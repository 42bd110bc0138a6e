package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fxmarket/forex-marketplace/internal/domain"
	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/fxmarket/forex-marketplace/internal/notify"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderSettlesHappyPath(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	source := f.fundWallet(t, "USD", "1000")
	f.rates.set(t, "USD", "EUR", "0.85")

	order, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:       f.userID,
		Side:         domain.OrderSideBuy,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		FromAmount:   decimal.RequireFromString("1000"),
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, order.Status)
	requireDecimalEqual(t, "850", order.ToAmount)
	requireDecimalEqual(t, "0.85", order.Rate)

	requireDecimalEqual(t, "0", f.walletBalance(t, "USD"))
	requireDecimalEqual(t, "850", f.walletBalance(t, "EUR"))

	settlements, err := f.orderSvc.GetOrderSettlements(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	requireDecimalEqual(t, "1000", settlements[0].FromAmount)
	requireDecimalEqual(t, "850", settlements[0].ToAmount)

	debits, err := f.walletSvc.ListTransactions(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, debits, 1)
	require.Equal(t, domain.DirectionDebit, debits[0].Direction)
	require.Equal(t, order.ID.String(), debits[0].ReferenceID)
	require.Equal(t, "Forex order: USD to EUR", debits[0].Description)

	require.Len(t, f.bus.byPattern(notify.PatternTransactionNotification), 1)
	orderEvents := f.bus.byPattern(notify.PatternOrderNotification)
	require.Len(t, orderEvents, 1)
	event, ok := orderEvents[0].(notify.OrderEvent)
	require.True(t, ok)
	require.Equal(t, domain.OrderStatusCompleted, event.Status)
	require.Equal(t, "trader@example.com", event.Email)
}

func TestCreateOrderProvisionsDestinationWallet(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.fundWallet(t, "USD", "500")
	f.rates.set(t, "USD", "GBP", "0.8")

	_, err := f.walletSvc.GetWalletByUserAndCurrency(ctx, f.userID, "GBP")
	require.ErrorIs(t, err, models.ErrWalletNotFound)

	order, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:       f.userID,
		Side:         domain.OrderSideSell,
		FromCurrency: "usd",
		ToCurrency:   "gbp",
		FromAmount:   decimal.RequireFromString("500"),
	})
	require.NoError(t, err)
	require.Equal(t, "USD", order.FromCurrency)
	require.Equal(t, "GBP", order.ToCurrency)
	requireDecimalEqual(t, "400", f.walletBalance(t, "GBP"))
}

func TestCreateOrderUnknownPairWritesNoOrder(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.fundWallet(t, "USD", "1000")

	_, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:       f.userID,
		Side:         domain.OrderSideBuy,
		FromCurrency: "USD",
		ToCurrency:   "XXX",
		FromAmount:   decimal.RequireFromString("100"),
	})
	require.ErrorIs(t, err, models.ErrPairNotTradeable)

	orders, err := f.orders.Queries().ListOrdersByUser(ctx, f.userID)
	require.NoError(t, err)
	require.Empty(t, orders)
	requireDecimalEqual(t, "1000", f.walletBalance(t, "USD"))
}

func TestCreateOrderValidatesInput(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	_, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID: f.userID, Side: domain.OrderSideBuy,
		FromCurrency: "USD", ToCurrency: "EUR",
		FromAmount: decimal.Zero,
	})
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID: f.userID, Side: domain.OrderSideBuy,
		FromCurrency: "  ", ToCurrency: "EUR",
		FromAmount: decimal.RequireFromString("10"),
	})
	require.ErrorIs(t, err, models.ErrInvalidCurrency)

	_, err = f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID: f.userID, Side: "LONG",
		FromCurrency: "USD", ToCurrency: "EUR",
		FromAmount: decimal.RequireFromString("10"),
	})
	require.Error(t, err)
}

func TestCreateOrderInsufficientFundsFailsOrder(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	source := f.fundWallet(t, "USD", "100")
	f.rates.set(t, "USD", "EUR", "0.85")

	_, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:       f.userID,
		Side:         domain.OrderSideBuy,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		FromAmount:   decimal.RequireFromString("1000"),
	})
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	orders, listErr := f.orders.Queries().ListOrdersByUser(ctx, f.userID)
	require.NoError(t, listErr)
	require.Len(t, orders, 1)
	require.Equal(t, domain.OrderStatusFailed, orders[0].Status)

	// The balance pre-check ran before any ledger call, so no movement
	// and no settlement exist.
	requireDecimalEqual(t, "100", f.walletBalance(t, "USD"))
	txns, txErr := f.walletSvc.ListTransactions(ctx, source.ID)
	require.NoError(t, txErr)
	require.Empty(t, txns)
	settlements, sErr := f.orders.Queries().ListSettlementsByOrder(ctx, orders[0].ID)
	require.NoError(t, sErr)
	require.Empty(t, settlements)

	events := f.bus.byPattern(notify.PatternOrderNotification)
	require.Len(t, events, 1)
	event, ok := events[0].(notify.OrderEvent)
	require.True(t, ok)
	require.Equal(t, domain.OrderStatusFailed, event.Status)
	require.Equal(t, "insufficient funds", event.Metadata["error"])
}

func TestSettleConflictOnSettledOrder(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.fundWallet(t, "USD", "1000")
	f.rates.set(t, "USD", "EUR", "0.85")

	order, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:       f.userID,
		Side:         domain.OrderSideBuy,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		FromAmount:   decimal.RequireFromString("400"),
	})
	require.NoError(t, err)
	f.bus.reset()

	err = f.orderSvc.settle(ctx, order.ID)
	require.True(t, models.IsConflict(err))
	require.EqualError(t, err, "order is already COMPLETED")

	// The losing attempt changed nothing and notified nobody.
	requireDecimalEqual(t, "600", f.walletBalance(t, "USD"))
	requireDecimalEqual(t, "340", f.walletBalance(t, "EUR"))
	require.Empty(t, f.bus.byPattern(notify.PatternOrderNotification))

	settlements, err := f.orderSvc.GetOrderSettlements(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, settlements, 1)
}

func TestSettleUsesSnapshottedRate(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.fundWallet(t, "USD", "1000")

	// A PENDING order priced at 0.85 settles at 0.85 even though the
	// provider has since moved to 0.95.
	order := &models.Order{
		ID:           uuid.New(),
		UserID:       f.userID,
		Side:         domain.OrderSideBuy,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		FromAmount:   decimal.RequireFromString("1000"),
		ToAmount:     decimal.RequireFromString("850"),
		Rate:         decimal.RequireFromString("0.85"),
		Status:       domain.OrderStatusPending,
	}
	require.NoError(t, f.orders.Queries().CreateOrder(ctx, order))
	f.rates.set(t, "USD", "EUR", "0.95")

	require.NoError(t, f.orderSvc.settle(ctx, order.ID))
	requireDecimalEqual(t, "850", f.walletBalance(t, "EUR"))
}

func TestConcurrentSettleOneWinner(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.fundWallet(t, "USD", "1000")

	order := &models.Order{
		ID:           uuid.New(),
		UserID:       f.userID,
		Side:         domain.OrderSideBuy,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		FromAmount:   decimal.RequireFromString("1000"),
		ToAmount:     decimal.RequireFromString("850"),
		Rate:         decimal.RequireFromString("0.85"),
		Status:       domain.OrderStatusPending,
	}
	require.NoError(t, f.orders.Queries().CreateOrder(ctx, order))

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.orderSvc.settle(ctx, order.ID)
		}(i)
	}
	wg.Wait()

	var completed, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			completed++
		case models.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected settle error: %v", err)
		}
	}
	require.Equal(t, 1, completed)
	require.Equal(t, 1, conflicts)

	// The source was debited exactly once.
	requireDecimalEqual(t, "0", f.walletBalance(t, "USD"))
	requireDecimalEqual(t, "850", f.walletBalance(t, "EUR"))
	settlements, err := f.orderSvc.GetOrderSettlements(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, settlements, 1)
}

func TestCreditFailureLeavesDebitApplied(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	source := f.fundWallet(t, "USD", "1000")
	f.rates.set(t, "USD", "EUR", "0.85")

	ledgerDown := errors.New("ledger rpc: connection refused")
	f.withLedger(creditFailingLedger{Ledger: f.walletSvc, failWith: ledgerDown})

	_, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:       f.userID,
		Side:         domain.OrderSideBuy,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		FromAmount:   decimal.RequireFromString("1000"),
	})
	require.ErrorIs(t, err, ledgerDown)

	orders, listErr := f.orders.Queries().ListOrdersByUser(ctx, f.userID)
	require.NoError(t, listErr)
	require.Len(t, orders, 1)
	require.Equal(t, domain.OrderStatusFailed, orders[0].Status)

	// The debit committed independently and survives the order failure:
	// the source stays debited while the destination got nothing.
	requireDecimalEqual(t, "0", f.walletBalance(t, "USD"))
	requireDecimalEqual(t, "0", f.walletBalance(t, "EUR"))
	txns, txErr := f.walletSvc.ListTransactions(ctx, source.ID)
	require.NoError(t, txErr)
	require.Len(t, txns, 1)
	require.Equal(t, domain.DirectionDebit, txns[0].Direction)

	settlements, sErr := f.orders.Queries().ListSettlementsByOrder(ctx, orders[0].ID)
	require.NoError(t, sErr)
	require.Empty(t, settlements)

	// The outbound reason is sanitized; transport detail stays internal.
	events := f.bus.byPattern(notify.PatternOrderNotification)
	require.Len(t, events, 1)
	event, ok := events[0].(notify.OrderEvent)
	require.True(t, ok)
	require.Equal(t, "order could not be completed", event.Metadata["error"])
}

func TestNotificationFailureDoesNotFailSettlement(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.fundWallet(t, "USD", "1000")
	f.rates.set(t, "USD", "EUR", "0.85")
	f.bus.err = errors.New("broker unavailable")

	order, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:       f.userID,
		Side:         domain.OrderSideBuy,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		FromAmount:   decimal.RequireFromString("1000"),
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, order.Status)
	requireDecimalEqual(t, "850", f.walletBalance(t, "EUR"))
}

func TestListOrdersReflectsNewOrders(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.fundWallet(t, "USD", "1000")
	f.rates.set(t, "USD", "EUR", "0.85")

	// Warm the listing cache with an empty result, then create an order.
	orders, err := f.orderSvc.ListOrders(ctx, f.userID)
	require.NoError(t, err)
	require.Empty(t, orders)

	order, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:       f.userID,
		Side:         domain.OrderSideBuy,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		FromAmount:   decimal.RequireFromString("250"),
	})
	require.NoError(t, err)

	// Settlement invalidated the cached listing.
	orders, err = f.orderSvc.ListOrders(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, order.ID, orders[0].ID)
	require.Equal(t, domain.OrderStatusCompleted, orders[0].Status)
}

func TestGetOrderNotFound(t *testing.T) {
	f := newOrderFixture(t)
	_, err := f.orderSvc.GetOrder(context.Background(), uuid.New())
	require.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestSanitizeFailureReason(t *testing.T) {
	cases := map[error]string{
		models.ErrInsufficientFunds:       "insufficient funds",
		models.ErrPairNotTradeable:        "pair not tradeable",
		context.DeadlineExceeded:          "service unavailable, please retry later",
		errors.New("pq: connection reset"): "order could not be completed",
	}
	for err, want := range cases {
		require.Equal(t, want, sanitizeFailureReason(err))
	}
}
