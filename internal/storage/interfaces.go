package storage

import (
	"context"

	"trading-coach/internal/domain"
)

// FillStore provides access to the canonical fill ledger.
type FillStore interface {
	// Insert adds a new fill. Returns ErrDuplicateKey if fill_id exists.
	// The ledger is append-only; duplicates are the dedup signal, not a fault.
	Insert(ctx context.Context, f *domain.Fill) error

	// InsertBulk adds multiple fills, skipping duplicates. Returns the
	// number of fills actually inserted.
	InsertBulk(ctx context.Context, fills []*domain.Fill) (int, error)

	// GetByID retrieves a fill by its exchange fill id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, fillID string) (*domain.Fill, error)

	// GetBySymbol retrieves all fills for a symbol, ordered by (executed_at, fill_id) ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.Fill, error)

	// GetByTimeRange retrieves fills within [start, end] (inclusive) across all
	// symbols, ordered by (executed_at, fill_id) ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Fill, error)

	// DeleteBySymbol removes all fills for a symbol. Used only by reset.
	DeleteBySymbol(ctx context.Context, symbol string) (int, error)
}

// CursorStore provides access to per-symbol sync cursors.
type CursorStore interface {
	// Get retrieves the cursor for a symbol. Returns ErrNotFound if the
	// symbol has never been synced.
	Get(ctx context.Context, symbol string) (*domain.SyncCursor, error)

	// Upsert creates or replaces the cursor for a symbol.
	Upsert(ctx context.Context, c *domain.SyncCursor) error

	// Delete removes the cursor for a symbol. Used only by reset.
	Delete(ctx context.Context, symbol string) error
}

// OrderSideStore caches resolved position sides per order id so order
// detail lookups against the exchange happen at most once per order.
type OrderSideStore interface {
	// Get retrieves the cached position side. Returns ErrNotFound if unseen.
	Get(ctx context.Context, orderID string) (domain.PositionSide, error)

	// Put caches the position side for an order id. Overwrites are allowed;
	// the value is immutable on the exchange side so last write wins.
	Put(ctx context.Context, orderID string, side domain.PositionSide) error
}

// LifecycleStore provides access to aggregated position lifecycles.
type LifecycleStore interface {
	// Upsert creates or replaces a lifecycle. Aggregation is a re-fold, so
	// replacement is the normal path, not an anomaly.
	Upsert(ctx context.Context, lc *domain.Lifecycle) error

	// GetByID retrieves a lifecycle by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, lifecycleID string) (*domain.Lifecycle, error)

	// GetBySymbol retrieves all lifecycles for a symbol, ordered by opened_at ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.Lifecycle, error)

	// GetClosedInRange retrieves closed lifecycles with closed_at within
	// [start, end] (inclusive), ordered by closed_at ASC.
	GetClosedInRange(ctx context.Context, start, end int64) ([]*domain.Lifecycle, error)

	// GetOpen retrieves all currently open lifecycles, ordered by opened_at ASC.
	GetOpen(ctx context.Context) ([]*domain.Lifecycle, error)

	// DeleteBySymbol removes all lifecycles for a symbol. Used only by reset.
	DeleteBySymbol(ctx context.Context, symbol string) (int, error)
}

// EventStore provides access to the rule event log.
type EventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists,
	// which makes re-evaluation of the same lifecycles a no-op.
	Insert(ctx context.Context, e *domain.Event) error

	// GetByTimeRange retrieves events with occurred_at within [start, end]
	// (inclusive), ordered by occurred_at ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Event, error)

	// GetByLifecycleID retrieves all events attached to a lifecycle.
	GetByLifecycleID(ctx context.Context, lifecycleID string) ([]*domain.Event, error)
}

// ReportStore provides access to generated review reports.
type ReportStore interface {
	// Upsert creates or replaces a report by id. Re-running a review for the
	// same period overwrites the previous render.
	Upsert(ctx context.Context, r *domain.Report) error

	// GetByID retrieves a report by id, e.g. "daily:2026-08-28".
	// Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, reportID string) (*domain.Report, error)

	// List retrieves the most recent reports of a period kind, newest first.
	List(ctx context.Context, periodKind string, limit int) ([]*domain.Report, error)
}

// RunStateStore is a small KV surface for scheduler bookkeeping such as
// last run start/end timestamps per review kind.
type RunStateStore interface {
	// Get retrieves a value. Returns ErrNotFound if the key is unset.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value, overwriting any previous one.
	Set(ctx context.Context, key, value string) error
}

// ScoreSnapshotStore provides append access to score history for
// cross-period analytics.
type ScoreSnapshotStore interface {
	// Insert appends one scored period.
	Insert(ctx context.Context, s *domain.ScoreSnapshot) error

	// GetByPeriodKind retrieves the most recent snapshots of a kind, newest first.
	GetByPeriodKind(ctx context.Context, periodKind string, limit int) ([]*domain.ScoreSnapshot, error)
}
