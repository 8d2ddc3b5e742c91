package postgres

import (
	"context"
	"fmt"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// ReportStore implements storage.ReportStore using PostgreSQL.
type ReportStore struct {
	pool *Pool
}

// NewReportStore creates a new ReportStore.
func NewReportStore(pool *Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReportStore = (*ReportStore)(nil)

const selectReportColumns = `
	report_id, period_kind, period_start_ms, period_end_ms,
	summary, body, score, generated_at
`

// Upsert creates or replaces a report by id.
func (s *ReportStore) Upsert(ctx context.Context, r *domain.Report) error {
	query := `
		INSERT INTO reports (
			report_id, period_kind, period_start_ms, period_end_ms,
			summary, body, score, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (report_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			body = EXCLUDED.body,
			score = EXCLUDED.score,
			generated_at = EXCLUDED.generated_at
	`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.PeriodKind, r.PeriodStartMs, r.PeriodEndMs,
		r.Summary, r.Body, r.Score, r.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}
	return nil
}

// GetByID retrieves a report by id. Returns ErrNotFound if not exists.
func (s *ReportStore) GetByID(ctx context.Context, reportID string) (*domain.Report, error) {
	query := `SELECT ` + selectReportColumns + ` FROM reports WHERE report_id = $1`

	var r domain.Report
	err := s.pool.QueryRow(ctx, query, reportID).Scan(
		&r.ID, &r.PeriodKind, &r.PeriodStartMs, &r.PeriodEndMs,
		&r.Summary, &r.Body, &r.Score, &r.GeneratedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get report by id: %w", err)
	}
	return &r, nil
}

// List retrieves the most recent reports of a period kind, newest first.
func (s *ReportStore) List(ctx context.Context, periodKind string, limit int) ([]*domain.Report, error) {
	query := `SELECT ` + selectReportColumns + `
		FROM reports
		WHERE period_kind = $1
		ORDER BY period_start_ms DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, periodKind, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var result []*domain.Report
	for rows.Next() {
		var r domain.Report
		err := rows.Scan(
			&r.ID, &r.PeriodKind, &r.PeriodStartMs, &r.PeriodEndMs,
			&r.Summary, &r.Body, &r.Score, &r.GeneratedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return result, nil
}
