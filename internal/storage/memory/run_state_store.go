package memory

import (
	"context"
	"sync"

	"trading-coach/internal/storage"
)

// RunStateStore is an in-memory implementation of storage.RunStateStore.
type RunStateStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewRunStateStore creates a new in-memory run state store.
func NewRunStateStore() *RunStateStore {
	return &RunStateStore{
		data: make(map[string]string),
	}
}

// Get retrieves a value. Returns ErrNotFound if the key is unset.
func (s *RunStateStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.data[key]
	if !exists {
		return "", storage.ErrNotFound
	}
	return v, nil
}

// Set stores a value, overwriting any previous one.
func (s *RunStateStore) Set(_ context.Context, key, value string) error {
	if key == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}

var _ storage.RunStateStore = (*RunStateStore)(nil)
