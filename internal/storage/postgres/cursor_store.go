package postgres

import (
	"context"
	"fmt"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// CursorStore implements storage.CursorStore using PostgreSQL.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new CursorStore.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// Get retrieves the cursor for a symbol. Returns ErrNotFound if never synced.
func (s *CursorStore) Get(ctx context.Context, symbol string) (*domain.SyncCursor, error) {
	query := `
		SELECT symbol, watermark_ms, last_fill_id, window_start_ms, window_end_ms, updated_at
		FROM sync_cursors
		WHERE symbol = $1
	`

	var c domain.SyncCursor
	err := s.pool.QueryRow(ctx, query, symbol).Scan(
		&c.Symbol, &c.WatermarkMs, &c.LastFillID,
		&c.WindowStartMs, &c.WindowEndMs, &c.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sync cursor: %w", err)
	}
	return &c, nil
}

// Upsert creates or replaces the cursor for a symbol.
func (s *CursorStore) Upsert(ctx context.Context, c *domain.SyncCursor) error {
	query := `
		INSERT INTO sync_cursors (symbol, watermark_ms, last_fill_id, window_start_ms, window_end_ms, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol) DO UPDATE SET
			watermark_ms = EXCLUDED.watermark_ms,
			last_fill_id = EXCLUDED.last_fill_id,
			window_start_ms = EXCLUDED.window_start_ms,
			window_end_ms = EXCLUDED.window_end_ms,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		c.Symbol, c.WatermarkMs, c.LastFillID,
		c.WindowStartMs, c.WindowEndMs, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert sync cursor: %w", err)
	}
	return nil
}

// Delete removes the cursor for a symbol. Used only by reset.
func (s *CursorStore) Delete(ctx context.Context, symbol string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sync_cursors WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("delete sync cursor: %w", err)
	}
	return nil
}
