package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// LifecycleStore implements storage.LifecycleStore using PostgreSQL.
// Scalar metrics live in columns for range queries; the constituent fill
// list is stored as JSONB since it is only ever read whole.
type LifecycleStore struct {
	pool *Pool
}

// NewLifecycleStore creates a new LifecycleStore.
func NewLifecycleStore(pool *Pool) *LifecycleStore {
	return &LifecycleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LifecycleStore = (*LifecycleStore)(nil)

const selectLifecycleColumns = `
	lifecycle_id, exchange, symbol, position_side, status,
	opened_at, closed_at, fills,
	net_quantity, avg_entry_price, avg_exit_price,
	realized_pnl, total_fees,
	max_adverse_excursion, max_favorable_excursion,
	peak_notional, peak_leverage, equity_at_entry,
	adds_count, reductions_count,
	entry_label, exit_label, inferred_fills
`

// Upsert creates or replaces a lifecycle.
func (s *LifecycleStore) Upsert(ctx context.Context, lc *domain.Lifecycle) error {
	fillsJSON, err := json.Marshal(lc.Fills)
	if err != nil {
		return fmt.Errorf("marshal constituent fills: %w", err)
	}

	query := `
		INSERT INTO lifecycles (
			lifecycle_id, exchange, symbol, position_side, status,
			opened_at, closed_at, fills,
			net_quantity, avg_entry_price, avg_exit_price,
			realized_pnl, total_fees,
			max_adverse_excursion, max_favorable_excursion,
			peak_notional, peak_leverage, equity_at_entry,
			adds_count, reductions_count,
			entry_label, exit_label, inferred_fills
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13,
			$14, $15,
			$16, $17, $18,
			$19, $20,
			$21, $22, $23
		)
		ON CONFLICT (lifecycle_id) DO UPDATE SET
			status = EXCLUDED.status,
			closed_at = EXCLUDED.closed_at,
			fills = EXCLUDED.fills,
			net_quantity = EXCLUDED.net_quantity,
			avg_entry_price = EXCLUDED.avg_entry_price,
			avg_exit_price = EXCLUDED.avg_exit_price,
			realized_pnl = EXCLUDED.realized_pnl,
			total_fees = EXCLUDED.total_fees,
			max_adverse_excursion = EXCLUDED.max_adverse_excursion,
			max_favorable_excursion = EXCLUDED.max_favorable_excursion,
			peak_notional = EXCLUDED.peak_notional,
			peak_leverage = EXCLUDED.peak_leverage,
			equity_at_entry = EXCLUDED.equity_at_entry,
			adds_count = EXCLUDED.adds_count,
			reductions_count = EXCLUDED.reductions_count,
			entry_label = EXCLUDED.entry_label,
			exit_label = EXCLUDED.exit_label,
			inferred_fills = EXCLUDED.inferred_fills
	`

	_, err = s.pool.Exec(ctx, query,
		lc.LifecycleID, lc.Exchange, lc.Symbol, lc.PositionSide, lc.Status,
		lc.OpenedAt, lc.ClosedAt, fillsJSON,
		lc.NetQuantity, lc.AvgEntryPrice, lc.AvgExitPrice,
		lc.RealizedPnL, lc.TotalFees,
		lc.MaxAdverseExcursion, lc.MaxFavorableExcursion,
		lc.PeakNotional, lc.PeakLeverage, lc.EquityAtEntry,
		lc.AddsCount, lc.ReductionsCount,
		lc.EntryLabel, lc.ExitLabel, lc.InferredFills,
	)
	if err != nil {
		return fmt.Errorf("upsert lifecycle: %w", err)
	}
	return nil
}

// GetByID retrieves a lifecycle by id. Returns ErrNotFound if not exists.
func (s *LifecycleStore) GetByID(ctx context.Context, lifecycleID string) (*domain.Lifecycle, error) {
	query := `SELECT ` + selectLifecycleColumns + ` FROM lifecycles WHERE lifecycle_id = $1`

	row := s.pool.QueryRow(ctx, query, lifecycleID)
	lc, err := scanLifecycle(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get lifecycle by id: %w", err)
	}
	return lc, nil
}

// GetBySymbol retrieves all lifecycles for a symbol, ordered by opened_at ASC.
func (s *LifecycleStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.Lifecycle, error) {
	query := `SELECT ` + selectLifecycleColumns + `
		FROM lifecycles
		WHERE symbol = $1
		ORDER BY opened_at ASC, lifecycle_id ASC`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get lifecycles by symbol: %w", err)
	}
	defer rows.Close()

	return scanLifecycles(rows)
}

// GetClosedInRange retrieves closed lifecycles with closed_at within
// [start, end] (inclusive), ordered by closed_at ASC.
func (s *LifecycleStore) GetClosedInRange(ctx context.Context, start, end int64) ([]*domain.Lifecycle, error) {
	query := `SELECT ` + selectLifecycleColumns + `
		FROM lifecycles
		WHERE status = 'CLOSED' AND closed_at >= $1 AND closed_at <= $2
		ORDER BY closed_at ASC, lifecycle_id ASC`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get closed lifecycles: %w", err)
	}
	defer rows.Close()

	return scanLifecycles(rows)
}

// GetOpen retrieves all currently open lifecycles, ordered by opened_at ASC.
func (s *LifecycleStore) GetOpen(ctx context.Context) ([]*domain.Lifecycle, error) {
	query := `SELECT ` + selectLifecycleColumns + `
		FROM lifecycles
		WHERE status = 'OPEN'
		ORDER BY opened_at ASC, lifecycle_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get open lifecycles: %w", err)
	}
	defer rows.Close()

	return scanLifecycles(rows)
}

// DeleteBySymbol removes all lifecycles for a symbol. Used only by reset.
func (s *LifecycleStore) DeleteBySymbol(ctx context.Context, symbol string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lifecycles WHERE symbol = $1`, symbol)
	if err != nil {
		return 0, fmt.Errorf("delete lifecycles by symbol: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type singleRowScanner interface {
	Scan(dest ...any) error
}

func scanLifecycle(row singleRowScanner) (*domain.Lifecycle, error) {
	var lc domain.Lifecycle
	var fillsJSON []byte

	err := row.Scan(
		&lc.LifecycleID, &lc.Exchange, &lc.Symbol, &lc.PositionSide, &lc.Status,
		&lc.OpenedAt, &lc.ClosedAt, &fillsJSON,
		&lc.NetQuantity, &lc.AvgEntryPrice, &lc.AvgExitPrice,
		&lc.RealizedPnL, &lc.TotalFees,
		&lc.MaxAdverseExcursion, &lc.MaxFavorableExcursion,
		&lc.PeakNotional, &lc.PeakLeverage, &lc.EquityAtEntry,
		&lc.AddsCount, &lc.ReductionsCount,
		&lc.EntryLabel, &lc.ExitLabel, &lc.InferredFills,
	)
	if err != nil {
		return nil, err
	}

	if len(fillsJSON) > 0 {
		if err := json.Unmarshal(fillsJSON, &lc.Fills); err != nil {
			return nil, fmt.Errorf("unmarshal constituent fills: %w", err)
		}
	}
	return &lc, nil
}

func scanLifecycles(rows rowScanner) ([]*domain.Lifecycle, error) {
	var result []*domain.Lifecycle
	for rows.Next() {
		lc, err := scanLifecycle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lifecycle: %w", err)
		}
		result = append(result, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lifecycles: %w", err)
	}
	return result, nil
}
