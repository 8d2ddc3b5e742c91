package memory

import (
	"context"
	"sync"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// OrderSideStore is an in-memory implementation of storage.OrderSideStore.
type OrderSideStore struct {
	mu   sync.RWMutex
	data map[string]domain.PositionSide // keyed by order_id
}

// NewOrderSideStore creates a new in-memory order side cache.
func NewOrderSideStore() *OrderSideStore {
	return &OrderSideStore{
		data: make(map[string]domain.PositionSide),
	}
}

// Get retrieves the cached position side. Returns ErrNotFound if unseen.
func (s *OrderSideStore) Get(_ context.Context, orderID string) (domain.PositionSide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	side, exists := s.data[orderID]
	if !exists {
		return domain.PositionUnknown, storage.ErrNotFound
	}
	return side, nil
}

// Put caches the position side for an order id.
func (s *OrderSideStore) Put(_ context.Context, orderID string, side domain.PositionSide) error {
	if orderID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[orderID] = side
	return nil
}

var _ storage.OrderSideStore = (*OrderSideStore)(nil)
