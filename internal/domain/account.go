package domain

// AccountSnapshot is a best-effort equity reading taken around sync time.
// Leverage-derived metrics stay null when no snapshot is available.
type AccountSnapshot struct {
	Equity     float64
	Available  float64
	MarginCoin string
	TakenAt    int64 // unix ms
}
