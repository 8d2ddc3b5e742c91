package memory

import (
	"context"
	"sort"
	"sync"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// FillStore is an in-memory implementation of storage.FillStore.
type FillStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Fill // keyed by fill_id
}

// NewFillStore creates a new in-memory fill store.
func NewFillStore() *FillStore {
	return &FillStore{
		data: make(map[string]*domain.Fill),
	}
}

// Insert adds a new fill. Returns ErrDuplicateKey if fill_id exists.
func (s *FillStore) Insert(_ context.Context, f *domain.Fill) error {
	if f == nil || f.FillID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[f.FillID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *f
	s.data[f.FillID] = &copy
	return nil
}

// InsertBulk adds multiple fills, skipping duplicates. Returns the number
// of fills actually inserted. Duplicates within the batch are skipped too;
// re-ingesting an overlapping page must never fail the whole batch.
func (s *FillStore) InsertBulk(_ context.Context, fills []*domain.Fill) (int, error) {
	if len(fills) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, f := range fills {
		if f == nil || f.FillID == "" {
			return inserted, storage.ErrInvalidInput
		}
		if _, exists := s.data[f.FillID]; exists {
			continue
		}
		copy := *f
		s.data[f.FillID] = &copy
		inserted++
	}

	return inserted, nil
}

// GetByID retrieves a fill by its exchange fill id. Returns ErrNotFound if not exists.
func (s *FillStore) GetByID(_ context.Context, fillID string) (*domain.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, exists := s.data[fillID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *f
	return &copy, nil
}

// GetBySymbol retrieves all fills for a symbol, ordered by (executed_at, fill_id) ASC.
func (s *FillStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Fill
	for _, f := range s.data {
		if f.Symbol == symbol {
			copy := *f
			result = append(result, &copy)
		}
	}

	sortFills(result)
	return result, nil
}

// GetByTimeRange retrieves fills within [start, end] (inclusive), ordered
// by (executed_at, fill_id) ASC.
func (s *FillStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Fill
	for _, f := range s.data {
		if f.ExecutedAt >= start && f.ExecutedAt <= end {
			copy := *f
			result = append(result, &copy)
		}
	}

	sortFills(result)
	return result, nil
}

// DeleteBySymbol removes all fills for a symbol. Used only by reset.
func (s *FillStore) DeleteBySymbol(_ context.Context, symbol string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, f := range s.data {
		if f.Symbol == symbol {
			delete(s.data, id)
			deleted++
		}
	}

	return deleted, nil
}

func sortFills(fills []*domain.Fill) {
	sort.Slice(fills, func(i, j int) bool {
		if fills[i].ExecutedAt != fills[j].ExecutedAt {
			return fills[i].ExecutedAt < fills[j].ExecutedAt
		}
		return fills[i].FillID < fills[j].FillID
	})
}

var _ storage.FillStore = (*FillStore)(nil)
