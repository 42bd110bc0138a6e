package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// In-memory stores mirror the Postgres semantics closely enough for unit
// tests and local development: RunInTx serializes on a store-wide mutex
// (standing in for row locks) and restores a snapshot when fn fails, so
// rollback behavior matches the real store.

// MemoryOrderStore is an in-memory OrderStore.
type MemoryOrderStore struct {
	mu   sync.Mutex
	data orderData
}

type orderData struct {
	orders      map[uuid.UUID]models.Order
	settlements []models.Settlement
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{data: orderData{orders: make(map[uuid.UUID]models.Order)}}
}

func (d orderData) clone() orderData {
	orders := make(map[uuid.UUID]models.Order, len(d.orders))
	for id, o := range d.orders {
		orders[id] = o
	}
	settlements := make([]models.Settlement, len(d.settlements))
	copy(settlements, d.settlements)
	return orderData{orders: orders, settlements: settlements}
}

func (s *MemoryOrderStore) Queries() OrderQuerier {
	return &lockedOrderQuerier{store: s}
}

func (s *MemoryOrderStore) RunInTx(ctx context.Context, fn func(q OrderQuerier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.data.clone()
	if err := fn(&memOrderQuerier{data: &s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

type memOrderQuerier struct {
	data *orderData
}

func (q *memOrderQuerier) CreateOrder(_ context.Context, order *models.Order) error {
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	q.data.orders[order.ID] = *order
	return nil
}

func (q *memOrderQuerier) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := q.data.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	return &order, nil
}

func (q *memOrderQuerier) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return q.GetOrder(ctx, id)
}

func (q *memOrderQuerier) UpdateOrderStatus(_ context.Context, id uuid.UUID, status string) (int64, error) {
	order, ok := q.data.orders[id]
	if !ok {
		return 0, nil
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	q.data.orders[id] = order
	return 1, nil
}

func (q *memOrderQuerier) ListOrdersByUser(_ context.Context, userID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	for _, order := range q.data.orders {
		if order.UserID == userID {
			orders = append(orders, order)
		}
	}
	sortByCreatedAtDesc(orders, func(o models.Order) time.Time { return o.CreatedAt })
	return orders, nil
}

func (q *memOrderQuerier) CreateSettlement(_ context.Context, settlement *models.Settlement) error {
	settlement.CreatedAt = time.Now().UTC()
	q.data.settlements = append(q.data.settlements, *settlement)
	return nil
}

func (q *memOrderQuerier) ListSettlementsByOrder(_ context.Context, orderID uuid.UUID) ([]models.Settlement, error) {
	var settlements []models.Settlement
	for _, s := range q.data.settlements {
		if s.OrderID == orderID {
			settlements = append(settlements, s)
		}
	}
	return settlements, nil
}

// lockedOrderQuerier guards single-statement access outside RunInTx.
type lockedOrderQuerier struct {
	store *MemoryOrderStore
}

func (l *lockedOrderQuerier) run(fn func(q *memOrderQuerier) error) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	return fn(&memOrderQuerier{data: &l.store.data})
}

func (l *lockedOrderQuerier) CreateOrder(ctx context.Context, order *models.Order) error {
	return l.run(func(q *memOrderQuerier) error { return q.CreateOrder(ctx, order) })
}

func (l *lockedOrderQuerier) GetOrder(ctx context.Context, id uuid.UUID) (order *models.Order, err error) {
	err = l.run(func(q *memOrderQuerier) error { order, err = q.GetOrder(ctx, id); return err })
	return order, err
}

func (l *lockedOrderQuerier) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return l.GetOrder(ctx, id)
}

func (l *lockedOrderQuerier) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (rows int64, err error) {
	err = l.run(func(q *memOrderQuerier) error { rows, err = q.UpdateOrderStatus(ctx, id, status); return err })
	return rows, err
}

func (l *lockedOrderQuerier) ListOrdersByUser(ctx context.Context, userID uuid.UUID) (orders []models.Order, err error) {
	err = l.run(func(q *memOrderQuerier) error { orders, err = q.ListOrdersByUser(ctx, userID); return err })
	return orders, err
}

func (l *lockedOrderQuerier) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	return l.run(func(q *memOrderQuerier) error { return q.CreateSettlement(ctx, settlement) })
}

func (l *lockedOrderQuerier) ListSettlementsByOrder(ctx context.Context, orderID uuid.UUID) (settlements []models.Settlement, err error) {
	err = l.run(func(q *memOrderQuerier) error { settlements, err = q.ListSettlementsByOrder(ctx, orderID); return err })
	return settlements, err
}

// MemoryWalletStore is an in-memory WalletStore.
type MemoryWalletStore struct {
	mu   sync.Mutex
	data walletData
}

type walletData struct {
	wallets      map[uuid.UUID]models.Wallet
	transactions []models.WalletTransaction
}

func NewMemoryWalletStore() *MemoryWalletStore {
	return &MemoryWalletStore{data: walletData{wallets: make(map[uuid.UUID]models.Wallet)}}
}

func (d walletData) clone() walletData {
	wallets := make(map[uuid.UUID]models.Wallet, len(d.wallets))
	for id, w := range d.wallets {
		wallets[id] = w
	}
	transactions := make([]models.WalletTransaction, len(d.transactions))
	copy(transactions, d.transactions)
	return walletData{wallets: wallets, transactions: transactions}
}

func (s *MemoryWalletStore) Queries() WalletQuerier {
	return &lockedWalletQuerier{store: s}
}

func (s *MemoryWalletStore) RunInTx(ctx context.Context, fn func(q WalletQuerier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.data.clone()
	if err := fn(&memWalletQuerier{data: &s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

type memWalletQuerier struct {
	data *walletData
}

func (q *memWalletQuerier) CreateWallet(_ context.Context, wallet *models.Wallet) error {
	for _, existing := range q.data.wallets {
		if existing.UserID == wallet.UserID && existing.Currency == wallet.Currency {
			return models.ErrWalletExists
		}
	}
	now := time.Now().UTC()
	wallet.CreatedAt = now
	wallet.UpdatedAt = now
	q.data.wallets[wallet.ID] = *wallet
	return nil
}

func (q *memWalletQuerier) GetWallet(_ context.Context, id uuid.UUID) (*models.Wallet, error) {
	wallet, ok := q.data.wallets[id]
	if !ok {
		return nil, models.ErrWalletNotFound
	}
	return &wallet, nil
}

func (q *memWalletQuerier) GetWalletForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return q.GetWallet(ctx, id)
}

func (q *memWalletQuerier) GetWalletByUserAndCurrency(_ context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	for _, wallet := range q.data.wallets {
		if wallet.UserID == userID && wallet.Currency == currency {
			return &wallet, nil
		}
	}
	return nil, models.ErrWalletNotFound
}

func (q *memWalletQuerier) ListWalletsByUser(_ context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	var wallets []models.Wallet
	for _, wallet := range q.data.wallets {
		if wallet.UserID == userID {
			wallets = append(wallets, wallet)
		}
	}
	return wallets, nil
}

func (q *memWalletQuerier) UpdateWalletBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal) (int64, error) {
	wallet, ok := q.data.wallets[id]
	if !ok {
		return 0, nil
	}
	wallet.Balance = balance
	wallet.UpdatedAt = time.Now().UTC()
	q.data.wallets[id] = wallet
	return 1, nil
}

func (q *memWalletQuerier) CreateWalletTransaction(_ context.Context, txn *models.WalletTransaction) error {
	txn.CreatedAt = time.Now().UTC()
	q.data.transactions = append(q.data.transactions, *txn)
	return nil
}

func (q *memWalletQuerier) ListWalletTransactions(_ context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error) {
	var txns []models.WalletTransaction
	for _, txn := range q.data.transactions {
		if txn.WalletID == walletID {
			txns = append(txns, txn)
		}
	}
	sortByCreatedAtDesc(txns, func(t models.WalletTransaction) time.Time { return t.CreatedAt })
	return txns, nil
}

type lockedWalletQuerier struct {
	store *MemoryWalletStore
}

func (l *lockedWalletQuerier) run(fn func(q *memWalletQuerier) error) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	return fn(&memWalletQuerier{data: &l.store.data})
}

func (l *lockedWalletQuerier) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	return l.run(func(q *memWalletQuerier) error { return q.CreateWallet(ctx, wallet) })
}

func (l *lockedWalletQuerier) GetWallet(ctx context.Context, id uuid.UUID) (wallet *models.Wallet, err error) {
	err = l.run(func(q *memWalletQuerier) error { wallet, err = q.GetWallet(ctx, id); return err })
	return wallet, err
}

func (l *lockedWalletQuerier) GetWalletForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return l.GetWallet(ctx, id)
}

func (l *lockedWalletQuerier) GetWalletByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency string) (wallet *models.Wallet, err error) {
	err = l.run(func(q *memWalletQuerier) error {
		wallet, err = q.GetWalletByUserAndCurrency(ctx, userID, currency)
		return err
	})
	return wallet, err
}

func (l *lockedWalletQuerier) ListWalletsByUser(ctx context.Context, userID uuid.UUID) (wallets []models.Wallet, err error) {
	err = l.run(func(q *memWalletQuerier) error { wallets, err = q.ListWalletsByUser(ctx, userID); return err })
	return wallets, err
}

func (l *lockedWalletQuerier) UpdateWalletBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (rows int64, err error) {
	err = l.run(func(q *memWalletQuerier) error { rows, err = q.UpdateWalletBalance(ctx, id, balance); return err })
	return rows, err
}

func (l *lockedWalletQuerier) CreateWalletTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return l.run(func(q *memWalletQuerier) error { return q.CreateWalletTransaction(ctx, txn) })
}

func (l *lockedWalletQuerier) ListWalletTransactions(ctx context.Context, walletID uuid.UUID) (txns []models.WalletTransaction, err error) {
	err = l.run(func(q *memWalletQuerier) error { txns, err = q.ListWalletTransactions(ctx, walletID); return err })
	return txns, err
}

func sortByCreatedAtDesc[T any](items []T, createdAt func(T) time.Time) {
	sort.Slice(items, func(i, j int) bool {
		return createdAt(items[i]).After(createdAt(items[j]))
	})
}
