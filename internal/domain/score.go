package domain

// DisciplineScore is the headline number for a review period: a 100-point
// base with fixed deductions per event tier, clamped to [0, 100].
type DisciplineScore struct {
	Score        int
	Base         int
	P0Count      int
	P1Count      int
	P2Count      int
	// TopIssues lists up to three distinct rule ids, highest severity and
	// most recent first.
	TopIssues []string
}

// ScoreSnapshot is one scored review period, written to the analytics
// store so score history can be queried across periods.
type ScoreSnapshot struct {
	PeriodKind     string // "daily", "weekly", "monthly"
	PeriodStartMs  int64
	PeriodEndMs    int64
	Score          int
	P0Count        int
	P1Count        int
	P2Count        int
	LifecycleCount int
	RealizedPnL    float64
	ComputedAt     int64 // unix ms
}
