package domain

// LifecycleStatus marks whether a lifecycle is still holding.
type LifecycleStatus string

const (
	LifecycleOpen   LifecycleStatus = "OPEN"
	LifecycleClosed LifecycleStatus = "CLOSED"
)

// IsValid checks if the status is a valid value.
func (s LifecycleStatus) IsValid() bool {
	return s == LifecycleOpen || s == LifecycleClosed
}

// FillRole classifies a constituent fill's effect on its lifecycle.
type FillRole string

const (
	RoleOpen   FillRole = "open"
	RoleScale  FillRole = "scale"
	RoleReduce FillRole = "reduce"
	RoleClose  FillRole = "close"
)

// ConstituentFill is a reference to a ledger fill from a lifecycle, with the
// quantity portion attributed to this lifecycle. A flip fill appears in two
// lifecycles with its quantity split between them; for every other fill the
// portion equals the full fill quantity.
type ConstituentFill struct {
	FillID     string   `json:"fill_id"`
	OrderID    string   `json:"order_id"`
	ExecutedAt int64    `json:"executed_at"`
	Side       Side     `json:"side"`
	Price      float64  `json:"price"`
	Quantity   float64  `json:"quantity"` // portion attributed to this lifecycle
	Role       FillRole `json:"role"`
	// NetAfter is the lifecycle's running net quantity after applying this
	// fill, replayable by folding fills in (executed_at, fill_id) order.
	NetAfter float64 `json:"net_after"`
	// Inferred mirrors Fill.SideInferred so confidence is visible without a
	// ledger lookup.
	Inferred bool `json:"inferred,omitempty"`
}

// Lifecycle is one contiguous holding period in a (symbol, position side),
// from flat to flat. Closed lifecycles are never mutated.
type Lifecycle struct {
	LifecycleID  string
	Exchange     string
	Symbol       string
	PositionSide PositionSide
	Status       LifecycleStatus

	OpenedAt int64  // unix ms, time of the opening fill
	ClosedAt *int64 // unix ms, nil while open

	Fills []ConstituentFill

	// Deterministic metrics replayable from Fills.
	NetQuantity   float64 // signed magnitude of the current holding, 0 when closed
	AvgEntryPrice float64
	AvgExitPrice  float64 // 0 until a reduce happens
	RealizedPnL   float64 // price pnl from the fill path; fees are tracked separately
	TotalFees     float64

	// Excursions along the lifecycle's own fill price path, in quote
	// currency. Adverse is <= 0, favorable is >= 0.
	MaxAdverseExcursion   float64
	MaxFavorableExcursion float64

	PeakNotional float64
	// PeakLeverage is peak notional over the equity snapshot at entry.
	// Nil when no snapshot was available (best-effort input).
	PeakLeverage *float64
	// EquityAtEntry is the available-margin snapshot used for leverage and
	// loss-percent rules. Nil when unavailable.
	EquityAtEntry *float64

	AddsCount       int
	ReductionsCount int
	EntryLabel      string // e.g. "scaled in 3x"
	ExitLabel       string // e.g. "scaled out 2x"

	// InferredFills counts constituents whose direction came from the
	// heuristic resolver; nonzero means reduced confidence.
	InferredFills int
}

// HoldingMs returns the holding duration in milliseconds, or 0 while open.
func (lc *Lifecycle) HoldingMs() int64 {
	if lc.ClosedAt == nil {
		return 0
	}
	return *lc.ClosedAt - lc.OpenedAt
}

// HasActivityBetween reports whether any constituent fill executed within
// [start, end) in unix ms.
func (lc *Lifecycle) HasActivityBetween(start, end int64) bool {
	for _, f := range lc.Fills {
		if f.ExecutedAt >= start && f.ExecutedAt < end {
			return true
		}
	}
	return false
}
