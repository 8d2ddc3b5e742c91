package memory

import (
	"context"
	"sync"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SyncCursor // keyed by symbol
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{
		data: make(map[string]*domain.SyncCursor),
	}
}

// Get retrieves the cursor for a symbol. Returns ErrNotFound if never synced.
func (s *CursorStore) Get(_ context.Context, symbol string) (*domain.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[symbol]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *c
	return &copy, nil
}

// Upsert creates or replaces the cursor for a symbol.
func (s *CursorStore) Upsert(_ context.Context, c *domain.SyncCursor) error {
	if c == nil || c.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *c
	s.data[c.Symbol] = &copy
	return nil
}

// Delete removes the cursor for a symbol. Used only by reset.
func (s *CursorStore) Delete(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, symbol)
	return nil
}

var _ storage.CursorStore = (*CursorStore)(nil)
