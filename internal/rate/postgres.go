package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store persists rate snapshots and serves them as a Provider.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, base, target string) (Quote, error) {
	row := s.db.QueryRow(ctx,
		`SELECT rate::text, ts FROM forex_rates WHERE base_currency = $1 AND target_currency = $2`,
		base, target)
	var raw string
	var asOf time.Time
	if err := row.Scan(&raw, &asOf); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrPairNotFound
		}
		return Quote{}, fmt.Errorf("get rate %s/%s: %w", base, target, err)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return Quote{}, fmt.Errorf("parse rate %s/%s: %w", base, target, err)
	}
	return Quote{BaseCurrency: base, TargetCurrency: target, Rate: d, AsOf: asOf}, nil
}

// UpsertRate records the latest snapshot for one pair.
func (s *Store) UpsertRate(ctx context.Context, base, target string, value decimal.Decimal, asOf time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO forex_rates (id, base_currency, target_currency, rate, ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (base_currency, target_currency)
		DO UPDATE SET rate = EXCLUDED.rate, ts = EXCLUDED.ts`,
		uuid.New(), base, target, value.String(), asOf.UTC())
	if err != nil {
		return fmt.Errorf("upsert rate %s/%s: %w", base, target, err)
	}
	return nil
}

// ListRates returns all known snapshots, newest first.
func (s *Store) ListRates(ctx context.Context) ([]models.ForexRate, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, base_currency, target_currency, rate::text, ts FROM forex_rates ORDER BY ts DESC, base_currency, target_currency`)
	if err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	defer rows.Close()

	var rates []models.ForexRate
	for rows.Next() {
		var r models.ForexRate
		var raw string
		if err := rows.Scan(&r.ID, &r.BaseCurrency, &r.TargetCurrency, &raw, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan rate: %w", err)
		}
		if r.Rate, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("parse rate: %w", err)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}
