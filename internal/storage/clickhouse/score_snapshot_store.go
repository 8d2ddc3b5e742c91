package clickhouse

import (
	"context"
	"fmt"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// ScoreSnapshotStore implements storage.ScoreSnapshotStore using ClickHouse.
// Score history is append-only analytics data; MergeTree suits it and
// duplicate periods are tolerated (the newest computed_at wins on read).
type ScoreSnapshotStore struct {
	conn *Conn
}

// NewScoreSnapshotStore creates a new ScoreSnapshotStore.
func NewScoreSnapshotStore(conn *Conn) *ScoreSnapshotStore {
	return &ScoreSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScoreSnapshotStore = (*ScoreSnapshotStore)(nil)

// Insert appends one scored period.
func (s *ScoreSnapshotStore) Insert(ctx context.Context, snap *domain.ScoreSnapshot) error {
	query := `
		INSERT INTO score_snapshots (
			period_kind, period_start_ms, period_end_ms,
			score, p0_count, p1_count, p2_count,
			lifecycle_count, realized_pnl, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		snap.PeriodKind, snap.PeriodStartMs, snap.PeriodEndMs,
		int32(snap.Score), int32(snap.P0Count), int32(snap.P1Count), int32(snap.P2Count),
		int32(snap.LifecycleCount), snap.RealizedPnL, snap.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("insert score snapshot: %w", err)
	}
	return nil
}

// GetByPeriodKind retrieves the most recent snapshots of a kind, newest first.
// When a period was re-scored, only the latest computation is returned.
func (s *ScoreSnapshotStore) GetByPeriodKind(ctx context.Context, periodKind string, limit int) ([]*domain.ScoreSnapshot, error) {
	query := `
		SELECT
			period_kind, period_start_ms, period_end_ms,
			score, p0_count, p1_count, p2_count,
			lifecycle_count, realized_pnl, computed_at
		FROM score_snapshots
		WHERE period_kind = ?
		ORDER BY period_start_ms DESC, computed_at DESC
		LIMIT 1 BY period_start_ms
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, periodKind, limit)
	if err != nil {
		return nil, fmt.Errorf("query score snapshots: %w", err)
	}
	defer rows.Close()

	var result []*domain.ScoreSnapshot
	for rows.Next() {
		var snap domain.ScoreSnapshot
		var score, p0, p1, p2, lifecycles int32
		err := rows.Scan(
			&snap.PeriodKind, &snap.PeriodStartMs, &snap.PeriodEndMs,
			&score, &p0, &p1, &p2,
			&lifecycles, &snap.RealizedPnL, &snap.ComputedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan score snapshot: %w", err)
		}
		snap.Score = int(score)
		snap.P0Count = int(p0)
		snap.P1Count = int(p1)
		snap.P2Count = int(p2)
		snap.LifecycleCount = int(lifecycles)
		result = append(result, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score snapshots: %w", err)
	}
	return result, nil
}
