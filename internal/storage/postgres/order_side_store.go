package postgres

import (
	"context"
	"fmt"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// OrderSideStore implements storage.OrderSideStore using PostgreSQL.
// It persists resolved position sides so order detail lookups survive
// restarts and never repeat per order.
type OrderSideStore struct {
	pool *Pool
}

// NewOrderSideStore creates a new OrderSideStore.
func NewOrderSideStore(pool *Pool) *OrderSideStore {
	return &OrderSideStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderSideStore = (*OrderSideStore)(nil)

// Get retrieves the cached position side. Returns ErrNotFound if unseen.
func (s *OrderSideStore) Get(ctx context.Context, orderID string) (domain.PositionSide, error) {
	var side domain.PositionSide
	err := s.pool.QueryRow(ctx,
		`SELECT position_side FROM order_sides WHERE order_id = $1`, orderID,
	).Scan(&side)
	if err != nil {
		if isNotFoundError(err) {
			return domain.PositionUnknown, storage.ErrNotFound
		}
		return domain.PositionUnknown, fmt.Errorf("get order side: %w", err)
	}
	return side, nil
}

// Put caches the position side for an order id.
func (s *OrderSideStore) Put(ctx context.Context, orderID string, side domain.PositionSide) error {
	query := `
		INSERT INTO order_sides (order_id, position_side)
		VALUES ($1, $2)
		ON CONFLICT (order_id) DO UPDATE SET position_side = EXCLUDED.position_side
	`
	if _, err := s.pool.Exec(ctx, query, orderID, side); err != nil {
		return fmt.Errorf("put order side: %w", err)
	}
	return nil
}
