package memory

import (
	"context"
	"sort"
	"sync"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// LifecycleStore is an in-memory implementation of storage.LifecycleStore.
type LifecycleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Lifecycle // keyed by lifecycle_id
}

// NewLifecycleStore creates a new in-memory lifecycle store.
func NewLifecycleStore() *LifecycleStore {
	return &LifecycleStore{
		data: make(map[string]*domain.Lifecycle),
	}
}

// Upsert creates or replaces a lifecycle.
func (s *LifecycleStore) Upsert(_ context.Context, lc *domain.Lifecycle) error {
	if lc == nil || lc.LifecycleID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[lc.LifecycleID] = cloneLifecycle(lc)
	return nil
}

// GetByID retrieves a lifecycle by id. Returns ErrNotFound if not exists.
func (s *LifecycleStore) GetByID(_ context.Context, lifecycleID string) (*domain.Lifecycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lc, exists := s.data[lifecycleID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneLifecycle(lc), nil
}

// GetBySymbol retrieves all lifecycles for a symbol, ordered by opened_at ASC.
func (s *LifecycleStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.Lifecycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Lifecycle
	for _, lc := range s.data {
		if lc.Symbol == symbol {
			result = append(result, cloneLifecycle(lc))
		}
	}

	sortLifecyclesByOpenedAt(result)
	return result, nil
}

// GetClosedInRange retrieves closed lifecycles with closed_at within
// [start, end] (inclusive), ordered by closed_at ASC.
func (s *LifecycleStore) GetClosedInRange(_ context.Context, start, end int64) ([]*domain.Lifecycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Lifecycle
	for _, lc := range s.data {
		if lc.Status != domain.LifecycleClosed || lc.ClosedAt == nil {
			continue
		}
		if *lc.ClosedAt >= start && *lc.ClosedAt <= end {
			result = append(result, cloneLifecycle(lc))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if *result[i].ClosedAt != *result[j].ClosedAt {
			return *result[i].ClosedAt < *result[j].ClosedAt
		}
		return result[i].LifecycleID < result[j].LifecycleID
	})
	return result, nil
}

// GetOpen retrieves all currently open lifecycles, ordered by opened_at ASC.
func (s *LifecycleStore) GetOpen(_ context.Context) ([]*domain.Lifecycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Lifecycle
	for _, lc := range s.data {
		if lc.Status == domain.LifecycleOpen {
			result = append(result, cloneLifecycle(lc))
		}
	}

	sortLifecyclesByOpenedAt(result)
	return result, nil
}

// DeleteBySymbol removes all lifecycles for a symbol. Used only by reset.
func (s *LifecycleStore) DeleteBySymbol(_ context.Context, symbol string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, lc := range s.data {
		if lc.Symbol == symbol {
			delete(s.data, id)
			deleted++
		}
	}

	return deleted, nil
}

func sortLifecyclesByOpenedAt(lcs []*domain.Lifecycle) {
	sort.Slice(lcs, func(i, j int) bool {
		if lcs[i].OpenedAt != lcs[j].OpenedAt {
			return lcs[i].OpenedAt < lcs[j].OpenedAt
		}
		return lcs[i].LifecycleID < lcs[j].LifecycleID
	})
}

// cloneLifecycle deep-copies a lifecycle, including the constituent fill
// slice and nullable fields, so callers cannot mutate stored state.
func cloneLifecycle(lc *domain.Lifecycle) *domain.Lifecycle {
	copy := *lc
	if lc.ClosedAt != nil {
		v := *lc.ClosedAt
		copy.ClosedAt = &v
	}
	if lc.PeakLeverage != nil {
		v := *lc.PeakLeverage
		copy.PeakLeverage = &v
	}
	if lc.EquityAtEntry != nil {
		v := *lc.EquityAtEntry
		copy.EquityAtEntry = &v
	}
	if lc.Fills != nil {
		copy.Fills = make([]domain.ConstituentFill, len(lc.Fills))
		for i := range lc.Fills {
			copy.Fills[i] = lc.Fills[i]
		}
	}
	return &copy
}

var _ storage.LifecycleStore = (*LifecycleStore)(nil)
