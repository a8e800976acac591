package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

// OrderStore persists swap orders in PostgreSQL.
type OrderStore struct {
	client *Client
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(client *Client) *OrderStore {
	return &OrderStore{client: client}
}

// Create inserts a new order row.
func (s *OrderStore) Create(ctx context.Context, order domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, token_in, token_out, amount, slippage_bps,
			status, tx_hash, attempts, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.client.Pool().Exec(ctx, query,
		order.ID,
		order.TokenIn,
		order.TokenOut,
		order.Amount.String(),
		order.SlippageBps.String(),
		string(order.Status),
		order.TxHash,
		order.Attempts,
		order.LastError,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", order.ID, err)
	}
	return nil
}

// GetByID fetches an order by its identifier. Returns domain.ErrNotFound
// when no row exists.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	const query = `
		SELECT id, token_in, token_out, amount::text, slippage_bps::text,
		       status, tx_hash, attempts, last_error, created_at, updated_at
		FROM orders
		WHERE id = $1`

	row := s.client.Pool().QueryRow(ctx, query, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return order, nil
}

// UpdateTerminal records the final outcome of an order. Non-terminal
// intermediate states are never written; they live only on the event stream.
func (s *OrderStore) UpdateTerminal(ctx context.Context, id string, update domain.TerminalUpdate) error {
	const query = `
		UPDATE orders
		SET status = $2, tx_hash = $3, last_error = $4, attempts = $5,
		    updated_at = NOW()
		WHERE id = $1`

	tag, err := s.client.Pool().Exec(ctx, query,
		id,
		string(update.Status),
		update.TxHash,
		update.LastError,
		update.Attempts,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListRecent returns the most recently created orders, newest first.
func (s *OrderStore) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, token_in, token_out, amount::text, slippage_bps::text,
		       status, tx_hash, attempts, last_error, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.client.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent orders: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order       domain.Order
		amount      string
		slippageBps string
		status      string
	)
	err := row.Scan(
		&order.ID,
		&order.TokenIn,
		&order.TokenOut,
		&amount,
		&slippageBps,
		&status,
		&order.TxHash,
		&order.Attempts,
		&order.LastError,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	if order.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Order{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if order.SlippageBps, err = decimal.NewFromString(slippageBps); err != nil {
		return domain.Order{}, fmt.Errorf("parse slippage_bps %q: %w", slippageBps, err)
	}
	return order, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
