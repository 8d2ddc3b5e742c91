package postgres

import (
	"context"
	"fmt"

	"trading-coach/internal/storage"
)

// RunStateStore implements storage.RunStateStore using PostgreSQL.
type RunStateStore struct {
	pool *Pool
}

// NewRunStateStore creates a new RunStateStore.
func NewRunStateStore(pool *Pool) *RunStateStore {
	return &RunStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStateStore = (*RunStateStore)(nil)

// Get retrieves a value. Returns ErrNotFound if the key is unset.
func (s *RunStateStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM run_state WHERE key = $1`, key,
	).Scan(&value)
	if err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get run state: %w", err)
	}
	return value, nil
}

// Set stores a value, overwriting any previous one.
func (s *RunStateStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO run_state (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set run state: %w", err)
	}
	return nil
}
