package service

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/fxmarket/forex-marketplace/internal/cache"
	"github.com/fxmarket/forex-marketplace/internal/domain"
	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/fxmarket/forex-marketplace/internal/rate"
	"github.com/fxmarket/forex-marketplace/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedis(client)
}

type busEvent struct {
	pattern string
	payload any
}

// recordingBus captures emitted events; err makes every Emit fail.
type recordingBus struct {
	mu     sync.Mutex
	events []busEvent
	err    error
}

func (b *recordingBus) Emit(_ context.Context, pattern string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, busEvent{pattern: pattern, payload: payload})
	return nil
}

func (b *recordingBus) byPattern(pattern string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []any
	for _, e := range b.events {
		if e.pattern == pattern {
			out = append(out, e.payload)
		}
	}
	return out
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// fixedProvider serves rates from a mutable pair table.
type fixedProvider struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
}

func newFixedProvider() *fixedProvider {
	return &fixedProvider{rates: make(map[string]decimal.Decimal)}
}

func (p *fixedProvider) set(t *testing.T, base, target, value string) {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[base+"/"+target] = d
}

func (p *fixedProvider) GetRate(_ context.Context, base, target string) (rate.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.rates[base+"/"+target]
	if !ok {
		return rate.Quote{}, rate.ErrPairNotFound
	}
	return rate.Quote{BaseCurrency: base, TargetCurrency: target, Rate: d}, nil
}

// stubDirectory resolves every user to a fixed email.
type stubDirectory struct {
	err error
}

func (d stubDirectory) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &models.User{ID: id, Email: "trader@example.com"}, nil
}

// creditFailingLedger passes debits through and fails every credit.
type creditFailingLedger struct {
	Ledger
	failWith error
}

func (l creditFailingLedger) ApplyMovement(ctx context.Context, in MovementInput) (*models.WalletTransaction, error) {
	if in.Direction == domain.DirectionCredit {
		return nil, l.failWith
	}
	return l.Ledger.ApplyMovement(ctx, in)
}

type orderFixture struct {
	orders    *repository.MemoryOrderStore
	wallets   *repository.MemoryWalletStore
	walletSvc *WalletService
	orderSvc  *OrderService
	bus       *recordingBus
	rates     *fixedProvider
	userID    uuid.UUID
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	f := &orderFixture{
		orders:  repository.NewMemoryOrderStore(),
		wallets: repository.NewMemoryWalletStore(),
		bus:     &recordingBus{},
		rates:   newFixedProvider(),
		userID:  uuid.New(),
	}
	c := newTestCache(t)
	f.walletSvc = NewWalletService(f.wallets, f.bus, c)
	f.orderSvc = NewOrderService(f.orders, f.walletSvc, f.rates, stubDirectory{}, f.bus, c)
	return f
}

// withLedger swaps the orchestrator's ledger, keeping everything else.
func (f *orderFixture) withLedger(ledger Ledger) {
	f.orderSvc.ledger = ledger
}

func (f *orderFixture) fundWallet(t *testing.T, currency, amount string) *models.Wallet {
	t.Helper()
	ctx := context.Background()
	wallet, err := f.walletSvc.CreateWallet(ctx, f.userID, currency)
	require.NoError(t, err)
	_, err = f.walletSvc.ApplyMovement(ctx, MovementInput{
		WalletID:    wallet.ID,
		Direction:   domain.DirectionCredit,
		Amount:      decimal.RequireFromString(amount),
		Description: "test funding",
	})
	require.NoError(t, err)
	f.bus.reset()
	wallet, err = f.walletSvc.GetWallet(ctx, wallet.ID)
	require.NoError(t, err)
	return wallet
}

func (f *orderFixture) walletBalance(t *testing.T, currency string) decimal.Decimal {
	t.Helper()
	wallet, err := f.walletSvc.GetWalletByUserAndCurrency(context.Background(), f.userID, currency)
	require.NoError(t, err)
	return wallet.Balance
}

func requireDecimalEqual(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got),
		"expected %s, got %s", want, got.String())
}
