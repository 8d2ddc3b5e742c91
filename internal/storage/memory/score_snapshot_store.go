package memory

import (
	"context"
	"sort"
	"sync"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// ScoreSnapshotStore is an in-memory implementation of storage.ScoreSnapshotStore.
type ScoreSnapshotStore struct {
	mu   sync.RWMutex
	data []*domain.ScoreSnapshot
}

// NewScoreSnapshotStore creates a new in-memory score snapshot store.
func NewScoreSnapshotStore() *ScoreSnapshotStore {
	return &ScoreSnapshotStore{}
}

// Insert appends one scored period.
func (s *ScoreSnapshotStore) Insert(_ context.Context, snap *domain.ScoreSnapshot) error {
	if snap == nil || snap.PeriodKind == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *snap
	s.data = append(s.data, &copy)
	return nil
}

// GetByPeriodKind retrieves the most recent snapshots of a kind, newest first.
func (s *ScoreSnapshotStore) GetByPeriodKind(_ context.Context, periodKind string, limit int) ([]*domain.ScoreSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScoreSnapshot
	for _, snap := range s.data {
		if snap.PeriodKind == periodKind {
			copy := *snap
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodStartMs > result[j].PeriodStartMs
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.ScoreSnapshotStore = (*ScoreSnapshotStore)(nil)
