package postgres

import (
	"context"
	"fmt"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// FillStore implements storage.FillStore using PostgreSQL.
type FillStore struct {
	pool *Pool
}

// NewFillStore creates a new FillStore.
func NewFillStore(pool *Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FillStore = (*FillStore)(nil)

const insertFillQuery = `
	INSERT INTO fills (
		fill_id, order_id, symbol, side,
		price, quantity, fee,
		trade_side, position_side, side_inferred,
		reported_pnl, executed_at, source
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7,
		$8, $9, $10,
		$11, $12, $13
	)
`

const selectFillColumns = `
	fill_id, order_id, symbol, side,
	price, quantity, fee,
	trade_side, position_side, side_inferred,
	reported_pnl, executed_at, source
`

// Insert adds a new fill. Returns ErrDuplicateKey if fill_id exists.
func (s *FillStore) Insert(ctx context.Context, f *domain.Fill) error {
	_, err := s.pool.Exec(ctx, insertFillQuery,
		f.FillID, f.OrderID, f.Symbol, f.Side,
		f.Price, f.Quantity, f.Fee,
		f.TradeSide, f.PositionSide, f.SideInferred,
		f.ReportedPnL, f.ExecutedAt, f.Source,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert fill: %w", err)
	}
	return nil
}

// InsertBulk adds multiple fills, skipping duplicates via ON CONFLICT.
// Returns the number of fills actually inserted.
func (s *FillStore) InsertBulk(ctx context.Context, fills []*domain.Fill) (int, error) {
	if len(fills) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := insertFillQuery + ` ON CONFLICT (fill_id) DO NOTHING`

	inserted := 0
	for _, f := range fills {
		tag, err := tx.Exec(ctx, query,
			f.FillID, f.OrderID, f.Symbol, f.Side,
			f.Price, f.Quantity, f.Fee,
			f.TradeSide, f.PositionSide, f.SideInferred,
			f.ReportedPnL, f.ExecutedAt, f.Source,
		)
		if err != nil {
			return 0, fmt.Errorf("insert fill in bulk: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// GetByID retrieves a fill by its exchange fill id. Returns ErrNotFound if not exists.
func (s *FillStore) GetByID(ctx context.Context, fillID string) (*domain.Fill, error) {
	query := `SELECT ` + selectFillColumns + ` FROM fills WHERE fill_id = $1`

	var f domain.Fill
	err := s.pool.QueryRow(ctx, query, fillID).Scan(
		&f.FillID, &f.OrderID, &f.Symbol, &f.Side,
		&f.Price, &f.Quantity, &f.Fee,
		&f.TradeSide, &f.PositionSide, &f.SideInferred,
		&f.ReportedPnL, &f.ExecutedAt, &f.Source,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fill by id: %w", err)
	}
	return &f, nil
}

// GetBySymbol retrieves all fills for a symbol, ordered by (executed_at, fill_id) ASC.
func (s *FillStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.Fill, error) {
	query := `SELECT ` + selectFillColumns + `
		FROM fills
		WHERE symbol = $1
		ORDER BY executed_at ASC, fill_id ASC`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get fills by symbol: %w", err)
	}
	defer rows.Close()

	return scanFills(rows)
}

// GetByTimeRange retrieves fills within [start, end] (inclusive), ordered
// by (executed_at, fill_id) ASC.
func (s *FillStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Fill, error) {
	query := `SELECT ` + selectFillColumns + `
		FROM fills
		WHERE executed_at >= $1 AND executed_at <= $2
		ORDER BY executed_at ASC, fill_id ASC`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get fills by time range: %w", err)
	}
	defer rows.Close()

	return scanFills(rows)
}

// DeleteBySymbol removes all fills for a symbol. Used only by reset.
func (s *FillStore) DeleteBySymbol(ctx context.Context, symbol string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fills WHERE symbol = $1`, symbol)
	if err != nil {
		return 0, fmt.Errorf("delete fills by symbol: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanFills(rows rowScanner) ([]*domain.Fill, error) {
	var result []*domain.Fill
	for rows.Next() {
		var f domain.Fill
		err := rows.Scan(
			&f.FillID, &f.OrderID, &f.Symbol, &f.Side,
			&f.Price, &f.Quantity, &f.Fee,
			&f.TradeSide, &f.PositionSide, &f.SideInferred,
			&f.ReportedPnL, &f.ExecutedAt, &f.Source,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fills: %w", err)
	}
	return result, nil
}
