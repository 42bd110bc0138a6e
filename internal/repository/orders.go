package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateOrder inserts a new order row and fills the generated timestamps.
func (q *Queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `INSERT INTO orders (id, user_id, side, from_currency, to_currency, from_amount, to_amount, rate, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query,
		order.ID, order.UserID, order.Side, order.FromCurrency, order.ToCurrency,
		order.FromAmount.String(), order.ToAmount.String(), order.Rate.String(), order.Status,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, side, from_currency, to_currency,
	from_amount::text, to_amount::text, rate::text, status, created_at, updated_at`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return 0, fmt.Errorf("update order status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	rows, err := q.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (q *Queries) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	query := `INSERT INTO settlements (id, order_id, from_wallet_id, to_wallet_id, from_amount, to_amount, rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at`
	err := q.db.QueryRow(ctx, query,
		settlement.ID, settlement.OrderID, settlement.FromWalletID, settlement.ToWalletID,
		settlement.FromAmount.String(), settlement.ToAmount.String(), settlement.Rate.String(),
	).Scan(&settlement.CreatedAt)
	if err != nil {
		return fmt.Errorf("create settlement: %w", err)
	}
	return nil
}

func (q *Queries) ListSettlementsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Settlement, error) {
	query := `SELECT id, order_id, from_wallet_id, to_wallet_id, from_amount::text, to_amount::text, rate::text, created_at
		FROM settlements WHERE order_id = $1 ORDER BY created_at`
	rows, err := q.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []models.Settlement
	for rows.Next() {
		var s models.Settlement
		var fromAmount, toAmount, rate string
		if err := rows.Scan(&s.ID, &s.OrderID, &s.FromWalletID, &s.ToWalletID, &fromAmount, &toAmount, &rate, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		if s.FromAmount, err = parseDecimal("from_amount", fromAmount); err != nil {
			return nil, err
		}
		if s.ToAmount, err = parseDecimal("to_amount", toAmount); err != nil {
			return nil, err
		}
		if s.Rate, err = parseDecimal("rate", rate); err != nil {
			return nil, err
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	var fromAmount, toAmount, rate string
	err := row.Scan(&order.ID, &order.UserID, &order.Side, &order.FromCurrency, &order.ToCurrency,
		&fromAmount, &toAmount, &rate, &order.Status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if order.FromAmount, err = parseDecimal("from_amount", fromAmount); err != nil {
		return nil, err
	}
	if order.ToAmount, err = parseDecimal("to_amount", toAmount); err != nil {
		return nil, err
	}
	if order.Rate, err = parseDecimal("rate", rate); err != nil {
		return nil, err
	}
	return order, nil
}
