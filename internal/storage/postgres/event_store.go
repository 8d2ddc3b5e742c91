package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const selectEventColumns = `
	event_id, rule_id, lifecycle_id, symbol, severity,
	message, comparison, trigger_fill_id, evidence, occurred_at
`

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) error {
	comparisonJSON, err := json.Marshal(e.Comparison)
	if err != nil {
		return fmt.Errorf("marshal comparison: %w", err)
	}
	evidenceJSON, err := json.Marshal(e.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	query := `
		INSERT INTO events (
			event_id, rule_id, lifecycle_id, symbol, severity,
			message, comparison, trigger_fill_id, evidence, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.pool.Exec(ctx, query,
		e.EventID, e.RuleID, e.LifecycleID, e.Symbol, e.Severity,
		e.Message, comparisonJSON, e.TriggerFillID, evidenceJSON, e.OccurredAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves events with occurred_at within [start, end]
// (inclusive), ordered by occurred_at ASC.
func (s *EventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Event, error) {
	query := `SELECT ` + selectEventColumns + `
		FROM events
		WHERE occurred_at >= $1 AND occurred_at <= $2
		ORDER BY occurred_at ASC, event_id ASC`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get events by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByLifecycleID retrieves all events attached to a lifecycle.
func (s *EventStore) GetByLifecycleID(ctx context.Context, lifecycleID string) ([]*domain.Event, error) {
	query := `SELECT ` + selectEventColumns + `
		FROM events
		WHERE lifecycle_id = $1
		ORDER BY occurred_at ASC, event_id ASC`

	rows, err := s.pool.Query(ctx, query, lifecycleID)
	if err != nil {
		return nil, fmt.Errorf("get events by lifecycle: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows rowScanner) ([]*domain.Event, error) {
	var result []*domain.Event
	for rows.Next() {
		var e domain.Event
		var comparisonJSON, evidenceJSON []byte

		err := rows.Scan(
			&e.EventID, &e.RuleID, &e.LifecycleID, &e.Symbol, &e.Severity,
			&e.Message, &comparisonJSON, &e.TriggerFillID, &evidenceJSON, &e.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		if len(comparisonJSON) > 0 {
			if err := json.Unmarshal(comparisonJSON, &e.Comparison); err != nil {
				return nil, fmt.Errorf("unmarshal comparison: %w", err)
			}
		}
		if len(evidenceJSON) > 0 {
			if err := json.Unmarshal(evidenceJSON, &e.Evidence); err != nil {
				return nil, fmt.Errorf("unmarshal evidence: %w", err)
			}
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return result, nil
}
