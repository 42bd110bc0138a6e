package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxmarket/forex-marketplace/internal/cache"
	"github.com/fxmarket/forex-marketplace/internal/domain"
	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/fxmarket/forex-marketplace/internal/notify"
	"github.com/fxmarket/forex-marketplace/internal/observability"
	"github.com/fxmarket/forex-marketplace/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletService owns wallet balances and the append-only movement log.
// Balance mutation happens only inside ApplyMovement, under a row lock.
type WalletService struct {
	store     repository.WalletStore
	bus       notify.Bus
	cache     cache.Cache
	walletTTL time.Duration
}

func NewWalletService(store repository.WalletStore, bus notify.Bus, c cache.Cache) *WalletService {
	return &WalletService{
		store:     store,
		bus:       bus,
		cache:     c,
		walletTTL: 5 * time.Minute,
	}
}

// WithCacheTTL overrides the wallet lookup cache TTL.
func (s *WalletService) WithCacheTTL(ttl time.Duration) *WalletService {
	s.walletTTL = ttl
	return s
}

// CreateWallet provisions a zero-balance wallet for (user, currency).
// A duplicate, whether found by the pre-check or by losing a create race on
// the unique index, surfaces as ErrWalletExists.
func (s *WalletService) CreateWallet(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	currency = normalizeCurrency(currency)
	if currency == "" {
		return nil, models.ErrInvalidCurrency
	}

	if _, err := s.store.Queries().GetWalletByUserAndCurrency(ctx, userID, currency); err == nil {
		return nil, models.ErrWalletExists
	} else if !errors.Is(err, models.ErrWalletNotFound) {
		return nil, err
	}

	wallet := &models.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Currency: currency,
		Balance:  decimal.Zero,
	}
	if err := s.store.Queries().CreateWallet(ctx, wallet); err != nil {
		return nil, err
	}

	s.emitWalletEvent(ctx, wallet, "CREATED", nil)
	if err := s.cache.Delete(ctx, cache.WalletsByUserKey(userID.String())); err != nil {
		return nil, err
	}
	return wallet, nil
}

// GetWallet returns a wallet by id.
func (s *WalletService) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return s.store.Queries().GetWallet(ctx, id)
}

// GetWalletByUserAndCurrency resolves the wallet for (user, currency).
// Reads go straight to the store; settlement depends on a fresh balance.
func (s *WalletService) GetWalletByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	return s.store.Queries().GetWalletByUserAndCurrency(ctx, userID, normalizeCurrency(currency))
}

// ResolveOrCreate returns the wallet for (user, currency), provisioning a
// zero-balance one when missing. A lost create race resolves to the winner's
// wallet instead of failing.
func (s *WalletService) ResolveOrCreate(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	wallet, err := s.GetWalletByUserAndCurrency(ctx, userID, currency)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, models.ErrWalletNotFound) {
		return nil, err
	}

	wallet, err = s.CreateWallet(ctx, userID, currency)
	if errors.Is(err, models.ErrWalletExists) {
		return s.GetWalletByUserAndCurrency(ctx, userID, currency)
	}
	return wallet, err
}

// ListWallets returns the user's wallets through the read-through cache.
func (s *WalletService) ListWallets(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	var wallets []models.Wallet
	err := s.cache.GetOrSet(ctx, cache.WalletsByUserKey(userID.String()), s.walletTTL, &wallets, func(ctx context.Context) (any, error) {
		return s.store.Queries().ListWalletsByUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

// ListTransactions returns the wallet's movement log, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error) {
	if _, err := s.store.Queries().GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return s.store.Queries().ListWalletTransactions(ctx, walletID)
}

// ApplyMovement applies one debit or credit atomically: row lock, balance
// check, balance write, and ledger append commit together or not at all.
func (s *WalletService) ApplyMovement(ctx context.Context, in MovementInput) (*models.WalletTransaction, error) {
	if !domain.ValidDirection(in.Direction) {
		return nil, fmt.Errorf("unknown movement direction %q", in.Direction)
	}
	if !domain.Positive(in.Amount) {
		return nil, models.ErrInvalidAmount
	}

	var wallet *models.Wallet
	var txn *models.WalletTransaction
	err := s.store.RunInTx(ctx, func(q repository.WalletQuerier) error {
		var err error
		wallet, err = q.GetWalletForUpdate(ctx, in.WalletID)
		if err != nil {
			return err
		}

		newBalance := wallet.Balance.Add(in.Amount)
		if in.Direction == domain.DirectionDebit {
			if in.Amount.GreaterThan(wallet.Balance) {
				return models.ErrInsufficientFunds
			}
			newBalance = wallet.Balance.Sub(in.Amount)
		}

		rows, err := q.UpdateWalletBalance(ctx, wallet.ID, newBalance)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "update wallet balance"); err != nil {
			return err
		}
		wallet.Balance = newBalance

		txn = &models.WalletTransaction{
			ID:          uuid.New(),
			WalletID:    wallet.ID,
			Direction:   in.Direction,
			Amount:      in.Amount,
			Description: in.Description,
			ReferenceID: in.ReferenceID,
		}
		return q.CreateWalletTransaction(ctx, txn)
	})
	if err != nil {
		observability.IncrementWalletMovement(in.Direction, "rejected")
		return nil, err
	}

	observability.IncrementWalletMovement(in.Direction, "applied")
	s.emitWalletEvent(ctx, wallet, in.Direction, map[string]any{
		"amount":         in.Amount.String(),
		"transaction_id": txn.ID.String(),
		"reference_id":   in.ReferenceID,
	})
	if err := s.cache.Delete(ctx,
		cache.WalletKey(wallet.UserID.String(), wallet.Currency),
		cache.WalletsByUserKey(wallet.UserID.String()),
	); err != nil {
		return nil, err
	}
	return txn, nil
}

// emitWalletEvent publishes a wallet notification; failures are logged only.
func (s *WalletService) emitWalletEvent(ctx context.Context, wallet *models.Wallet, action string, metadata map[string]any) {
	event := notify.WalletEvent{
		UserID:   wallet.UserID.String(),
		WalletID: wallet.ID.String(),
		Currency: wallet.Currency,
		Action:   action,
		Metadata: metadata,
	}
	if err := s.bus.Emit(ctx, notify.PatternWalletNotification, event); err != nil {
		zap.L().Warn("wallet notification emit failed",
			zap.Error(err),
			zap.String("wallet_id", wallet.ID.String()),
			zap.String("action", action),
		)
	}
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
