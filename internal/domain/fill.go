package domain

// Side represents the execution side of a fill as reported by the exchange.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// PositionSide represents the directional context of a fill or lifecycle.
// Unknown means the exchange did not report it and no resolver could
// determine it.
type PositionSide string

const (
	PositionLong    PositionSide = "long"
	PositionShort   PositionSide = "short"
	PositionUnknown PositionSide = "unknown"
)

// String returns the string representation of PositionSide.
func (p PositionSide) String() string {
	return string(p)
}

// IsValid checks if the position side is a valid value.
func (p PositionSide) IsValid() bool {
	return p == PositionLong || p == PositionShort || p == PositionUnknown
}

// Opposite returns the reverse direction. Unknown stays unknown.
func (p PositionSide) Opposite() PositionSide {
	switch p {
	case PositionLong:
		return PositionShort
	case PositionShort:
		return PositionLong
	default:
		return PositionUnknown
	}
}

// TradeSide is the exchange's open/close flag on a fill. Unknown when the
// exchange omits it (one-way accounts).
type TradeSide string

const (
	TradeOpen    TradeSide = "open"
	TradeClose   TradeSide = "close"
	TradeUnknown TradeSide = "unknown"
)

// FillSource records which fetch path produced a fill. Direction data from
// the fallback path is heuristic and downstream consumers discount it.
type FillSource string

const (
	SourceRESTFills FillSource = "rest_fills"
	SourceFallback  FillSource = "fallback"
)

// Fill is one executed trade leg, normalized from the exchange payload.
// Immutable once stored; the ledger is keyed by FillID.
type Fill struct {
	FillID   string // exchange fill id, unique key
	OrderID  string
	Symbol   string // normalized, e.g. "BTC/USDT:USDT"
	Side     Side
	Price    float64
	Quantity float64
	Fee      float64 // always non-negative (USDT)

	// Derivatives context.
	TradeSide    TradeSide
	PositionSide PositionSide
	// SideInferred is true when PositionSide came from the heuristic
	// resolver rather than exchange metadata.
	SideInferred bool

	// ReportedPnL is the exchange-reported realized profit contribution for
	// this fill, when provided. Nil otherwise.
	ReportedPnL *float64

	ExecutedAt int64 // unix ms
	Source     FillSource
}

// Notional returns the quote-currency value of the fill.
func (f *Fill) Notional() float64 {
	return f.Price * f.Quantity
}
