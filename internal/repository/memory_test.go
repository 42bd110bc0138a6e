package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMemoryWalletStoreRollsBackOnError(t *testing.T) {
	store := NewMemoryWalletStore()
	ctx := context.Background()

	wallet := &models.Wallet{ID: uuid.New(), UserID: uuid.New(), Currency: "USD", Balance: decimal.Zero}
	require.NoError(t, store.Queries().CreateWallet(ctx, wallet))

	boom := errors.New("forced failure")
	err := store.RunInTx(ctx, func(q WalletQuerier) error {
		rows, err := q.UpdateWalletBalance(ctx, wallet.ID, decimal.RequireFromString("999"))
		require.NoError(t, err)
		require.EqualValues(t, 1, rows)
		require.NoError(t, q.CreateWalletTransaction(ctx, &models.WalletTransaction{
			ID: uuid.New(), WalletID: wallet.ID, Direction: "CREDIT", Amount: decimal.RequireFromString("999"),
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The balance write and the ledger append were both undone.
	reloaded, err := store.Queries().GetWallet(ctx, wallet.ID)
	require.NoError(t, err)
	require.True(t, reloaded.Balance.IsZero())
	txns, err := store.Queries().ListWalletTransactions(ctx, wallet.ID)
	require.NoError(t, err)
	require.Empty(t, txns)
}

func TestMemoryWalletStoreUniqueUserCurrency(t *testing.T) {
	store := NewMemoryWalletStore()
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, store.Queries().CreateWallet(ctx, &models.Wallet{ID: uuid.New(), UserID: userID, Currency: "USD"}))
	err := store.Queries().CreateWallet(ctx, &models.Wallet{ID: uuid.New(), UserID: userID, Currency: "USD"})
	require.ErrorIs(t, err, models.ErrWalletExists)
}

func TestMemoryOrderStoreRollsBackStatus(t *testing.T) {
	store := NewMemoryOrderStore()
	ctx := context.Background()

	order := &models.Order{ID: uuid.New(), UserID: uuid.New(), Status: "PENDING"}
	require.NoError(t, store.Queries().CreateOrder(ctx, order))

	err := store.RunInTx(ctx, func(q OrderQuerier) error {
		if _, err := q.UpdateOrderStatus(ctx, order.ID, "FAILED"); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	reloaded, err := store.Queries().GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, "PENDING", reloaded.Status)
}

func TestMemoryOrderStoreListsNewestFirst(t *testing.T) {
	store := NewMemoryOrderStore()
	ctx := context.Background()
	userID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		order := &models.Order{ID: uuid.New(), UserID: userID, Status: "PENDING"}
		require.NoError(t, store.Queries().CreateOrder(ctx, order))
		ids = append(ids, order.ID)
		time.Sleep(time.Millisecond)
	}

	orders, err := store.Queries().ListOrdersByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	require.Equal(t, ids[2], orders[0].ID)
	require.Equal(t, ids[0], orders[2].ID)
}
