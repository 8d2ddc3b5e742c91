package memory

import (
	"context"
	"sort"
	"sync"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Event // keyed by event_id
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[string]*domain.Event),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(_ context.Context, e *domain.Event) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[e.EventID] = cloneEvent(e)
	return nil
}

// GetByTimeRange retrieves events with occurred_at within [start, end]
// (inclusive), ordered by occurred_at ASC.
func (s *EventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if e.OccurredAt >= start && e.OccurredAt <= end {
			result = append(result, cloneEvent(e))
		}
	}

	sortEvents(result)
	return result, nil
}

// GetByLifecycleID retrieves all events attached to a lifecycle.
func (s *EventStore) GetByLifecycleID(_ context.Context, lifecycleID string) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if e.LifecycleID == lifecycleID {
			result = append(result, cloneEvent(e))
		}
	}

	sortEvents(result)
	return result, nil
}

func sortEvents(events []*domain.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].OccurredAt != events[j].OccurredAt {
			return events[i].OccurredAt < events[j].OccurredAt
		}
		return events[i].EventID < events[j].EventID
	})
}

func cloneEvent(e *domain.Event) *domain.Event {
	copy := *e
	if e.Evidence != nil {
		copy.Evidence = make([]domain.TradeRef, len(e.Evidence))
		for i := range e.Evidence {
			copy.Evidence[i] = e.Evidence[i]
		}
	}
	return &copy
}

var _ storage.EventStore = (*EventStore)(nil)
