package reporting

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"trading-coach/internal/domain"
	"trading-coach/internal/rules"
	"trading-coach/internal/storage/memory"
)

func TestDailyPeriod(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	p := DailyPeriod(now, time.UTC)

	if p.ID != "daily:2026-08-28" {
		t.Errorf("id = %s", p.ID)
	}
	if p.StartMs != time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("start = %d", p.StartMs)
	}
	if p.EndMs != time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC).UnixMilli()-1 {
		t.Errorf("end = %d", p.EndMs)
	}
}

func TestWeeklyPeriodStartsMonday(t *testing.T) {
	// 2026-08-28 is a Friday; its week starts Monday 2026-08-24.
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	p := WeeklyPeriod(now, time.UTC)
	if p.ID != "weekly:2026-08-24" {
		t.Errorf("id = %s", p.ID)
	}

	// A Monday is its own week start. A Sunday belongs to the prior Monday.
	monday := WeeklyPeriod(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), time.UTC)
	if monday.ID != "weekly:2026-08-24" {
		t.Errorf("monday id = %s", monday.ID)
	}
	sunday := WeeklyPeriod(time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC), time.UTC)
	if sunday.ID != "weekly:2026-08-24" {
		t.Errorf("sunday id = %s", sunday.ID)
	}
}

func TestMonthlyPeriodAndLastDay(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	p := MonthlyPeriod(now, time.UTC)
	if p.ID != "monthly:2026-02" {
		t.Errorf("id = %s", p.ID)
	}
	if p.EndMs != time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()-1 {
		t.Errorf("end = %d", p.EndMs)
	}

	if IsLastDayOfMonth(time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC), time.UTC) {
		t.Error("feb 27 reported as last day")
	}
	if !IsLastDayOfMonth(time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC), time.UTC) {
		t.Error("feb 28 not reported as last day of a non-leap february")
	}
	if !IsLastDayOfMonth(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), time.UTC) {
		t.Error("dec 31 not reported as last day")
	}
}

func newTestGenerator(t *testing.T) (*Generator, *memory.LifecycleStore, *memory.EventStore, *memory.ReportStore) {
	t.Helper()
	lifecycles := memory.NewLifecycleStore()
	events := memory.NewEventStore()
	reports := memory.NewReportStore()

	gen, err := New(Options{
		Lifecycles: lifecycles,
		Events:     events,
		Reports:    reports,
		Logger:     log.New(io.Discard, "", 0),
		Location:   time.UTC,
		Now:        func() time.Time { return time.Date(2026, 8, 28, 23, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return gen, lifecycles, events, reports
}

func seedLifecycle(t *testing.T, store *memory.LifecycleStore, id string, closedAt int64, pnl, fees float64) {
	t.Helper()
	openedAt := closedAt - 3600_000
	err := store.Upsert(context.Background(), &domain.Lifecycle{
		LifecycleID:  id,
		Exchange:     "bitget",
		Symbol:       "BTC/USDT:USDT",
		PositionSide: domain.PositionLong,
		Status:       domain.LifecycleClosed,
		OpenedAt:     openedAt,
		ClosedAt:     &closedAt,
		RealizedPnL:  pnl,
		TotalFees:    fees,
	})
	if err != nil {
		t.Fatalf("seed lifecycle: %v", err)
	}
}

func TestRunBuildsAndStoresReport(t *testing.T) {
	ctx := context.Background()
	gen, lifecycles, events, reports := newTestGenerator(t)

	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	seedLifecycle(t, lifecycles, "a", day.Add(10*time.Hour).UnixMilli(), -60, 1.2)
	seedLifecycle(t, lifecycles, "b", day.Add(12*time.Hour).UnixMilli(), 25, 0.8)

	err := events.Insert(ctx, &domain.Event{
		EventID:     "ev1",
		RuleID:      rules.RuleBigLossPctEquity,
		LifecycleID: "a",
		Symbol:      "BTC/USDT:USDT",
		Severity:    domain.SeverityP0,
		Message:     "single-trade loss exceeded equity threshold: loss_pct_equity=6.00 (threshold >= 5.00)",
		Comparison:  domain.Comparison{Metric: "loss_pct_equity", Operator: ">=", Threshold: 5, Observed: 6},
		Evidence:    []domain.TradeRef{{FillID: "f9", Price: 90, Quantity: 2, ExecutedAt: day.Add(10 * time.Hour).UnixMilli()}},
		OccurredAt:  day.Add(10 * time.Hour).UnixMilli(),
	})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}

	p := DailyPeriod(day, time.UTC)
	report, err := gen.Run(ctx, p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.ID != "daily:2026-08-28" {
		t.Errorf("report id = %s", report.ID)
	}
	if report.Score != 80 {
		t.Errorf("score = %d, want 80", report.Score)
	}
	if !strings.Contains(report.Summary, "score 80/100") {
		t.Errorf("summary missing score: %q", report.Summary)
	}
	if !strings.Contains(report.Summary, "2 closed trades") {
		t.Errorf("summary missing trade count: %q", report.Summary)
	}
	// The short summary never carries evidence fill ids.
	if strings.Contains(report.Summary, "f9") {
		t.Errorf("summary leaked evidence ids: %q", report.Summary)
	}

	for _, want := range []string{
		"# Daily review 2026-08-28",
		"Realized pnl: -35.00 USDT",
		"Total fees: 2.00 USDT",
		"[P0]",
		"fill f9",
		"Single-trade loss cap",
	} {
		if !strings.Contains(report.Body, want) {
			t.Errorf("body missing %q", want)
		}
	}

	stored, err := reports.GetByID(ctx, "daily:2026-08-28")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Body != report.Body {
		t.Error("stored report differs from returned report")
	}

	// Re-running the same period replaces the stored render, not duplicates.
	if _, err := gen.Run(ctx, p); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	list, err := reports.List(ctx, KindDaily, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("stored reports = %d, want 1", len(list))
	}
}

func TestBuildSummaryCounts(t *testing.T) {
	ctx := context.Background()
	gen, lifecycles, _, _ := newTestGenerator(t)

	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	seedLifecycle(t, lifecycles, "a", day.Add(1*time.Hour).UnixMilli(), 10, 0)
	seedLifecycle(t, lifecycles, "b", day.Add(2*time.Hour).UnixMilli(), -5, 0)
	seedLifecycle(t, lifecycles, "c", day.Add(3*time.Hour).UnixMilli(), 0, 0)
	// Outside the period.
	seedLifecycle(t, lifecycles, "d", day.AddDate(0, 0, 2).UnixMilli(), 999, 0)

	sum, err := gen.BuildSummary(ctx, DailyPeriod(day, time.UTC))
	if err != nil {
		t.Fatalf("BuildSummary: %v", err)
	}
	if sum.LifecycleCount != 3 {
		t.Errorf("lifecycle count = %d, want 3", sum.LifecycleCount)
	}
	if sum.WinCount != 1 || sum.LossCount != 1 || sum.FlatCount != 1 {
		t.Errorf("win/loss/flat = %d/%d/%d, want 1/1/1", sum.WinCount, sum.LossCount, sum.FlatCount)
	}
	if sum.RealizedPnL != 5 {
		t.Errorf("pnl = %v, want 5", sum.RealizedPnL)
	}
	if sum.BiggestWin != 10 || sum.BiggestLoss != -5 {
		t.Errorf("biggest win/loss = %v/%v", sum.BiggestWin, sum.BiggestLoss)
	}
	if sum.AvgHoldingMs != 3600_000 {
		t.Errorf("avg holding = %d, want 3600000", sum.AvgHoldingMs)
	}
	if sum.SymbolPnL["BTC/USDT:USDT"] != 5 {
		t.Errorf("symbol pnl = %v", sum.SymbolPnL)
	}
}
