package domain

// Summary aggregates the closed lifecycles of one review period.
type Summary struct {
	PeriodKind    string
	PeriodStartMs int64
	PeriodEndMs   int64

	LifecycleCount int
	WinCount       int
	LossCount      int
	FlatCount      int
	RealizedPnL    float64
	TotalFees      float64
	BiggestWin     float64
	BiggestLoss    float64
	// AvgHoldingMs averages holding time across closed lifecycles.
	AvgHoldingMs int64
	// SymbolPnL maps normalized symbol to realized pnl for the period.
	SymbolPnL map[string]float64

	Score  DisciplineScore
	Events []Event
}

// Report is a rendered review: a short summary suitable for a chat message
// and a full markdown body stored and attached to notifications.
type Report struct {
	ID            string // e.g. "daily:2026-08-28"
	PeriodKind    string
	PeriodStartMs int64
	PeriodEndMs   int64
	Summary       string
	Body          string
	Score         int
	GeneratedAt   int64 // unix ms
}
