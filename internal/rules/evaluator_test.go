package rules

import (
	"context"
	"io"
	"log"
	"reflect"
	"testing"
	"time"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage/memory"
)

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// closedLifecycle builds a minimal closed lifecycle with an opening and a
// closing fill.
func closedLifecycle(id string, openedAt, closedAt int64, pnl float64, equity *float64) *domain.Lifecycle {
	return &domain.Lifecycle{
		LifecycleID:   id,
		Exchange:      "bitget",
		Symbol:        "BTC/USDT:USDT",
		PositionSide:  domain.PositionLong,
		Status:        domain.LifecycleClosed,
		OpenedAt:      openedAt,
		ClosedAt:      &closedAt,
		RealizedPnL:   pnl,
		EquityAtEntry: equity,
		Fills: []domain.ConstituentFill{
			{FillID: id + "-open", OrderID: "o1", ExecutedAt: openedAt, Side: domain.SideBuy, Price: 100, Quantity: 1, Role: domain.RoleOpen, NetAfter: 1},
			{FillID: id + "-close", OrderID: "o2", ExecutedAt: closedAt, Side: domain.SideSell, Price: 100, Quantity: 1, Role: domain.RoleClose, NetAfter: 0},
		},
	}
}

func findEvent(events []*domain.Event, ruleID string) *domain.Event {
	for _, ev := range events {
		if ev.RuleID == ruleID {
			return ev
		}
	}
	return nil
}

func TestBigLossFiresP0(t *testing.T) {
	equity := 1000.0
	lc := closedLifecycle("lc1", 1000, 2000, -60, &equity)

	e := New(DefaultCatalog(), discard())
	events := e.EvaluateLifecycle(lc)

	ev := findEvent(events, RuleBigLossPctEquity)
	if ev == nil {
		t.Fatal("big-loss rule did not fire")
	}
	if ev.Severity != domain.SeverityP0 {
		t.Errorf("severity = %s, want P0", ev.Severity)
	}
	if ev.Comparison.Observed != 6 {
		t.Errorf("observed = %v, want 6", ev.Comparison.Observed)
	}
	if ev.Comparison.Threshold != 5 || ev.Comparison.Operator != ">=" {
		t.Errorf("comparison = %+v, want >= 5", ev.Comparison)
	}
	if ev.TriggerFillID != "lc1-close" {
		t.Errorf("trigger fill = %s, want the closing fill", ev.TriggerFillID)
	}
	if len(ev.Evidence) != 1 || ev.Evidence[0].FillID != "lc1-close" {
		t.Errorf("evidence = %+v, want the closing fill only", ev.Evidence)
	}
}

func TestBigLossBelowThresholdStaysSilent(t *testing.T) {
	equity := 1000.0
	lc := closedLifecycle("lc1", 1000, 2000, -40, &equity)

	events := New(DefaultCatalog(), discard()).EvaluateLifecycle(lc)
	if ev := findEvent(events, RuleBigLossPctEquity); ev != nil {
		t.Errorf("big-loss fired on a 4%% loss: %+v", ev)
	}
}

func TestBigLossNeedsEquitySnapshot(t *testing.T) {
	lc := closedLifecycle("lc1", 1000, 2000, -500, nil)

	events := New(DefaultCatalog(), discard()).EvaluateLifecycle(lc)
	if ev := findEvent(events, RuleBigLossPctEquity); ev != nil {
		t.Error("big-loss must stay silent without an equity snapshot")
	}
}

func TestHighLeverageFiresP1(t *testing.T) {
	equity := 1000.0
	lev := 12.0
	lc := closedLifecycle("lc1", 1000, 2000, 10, &equity)
	lc.PeakLeverage = &lev

	events := New(DefaultCatalog(), discard()).EvaluateLifecycle(lc)
	ev := findEvent(events, RuleHighLeverage)
	if ev == nil {
		t.Fatal("high-leverage rule did not fire")
	}
	if ev.Severity != domain.SeverityP1 {
		t.Errorf("severity = %s, want P1", ev.Severity)
	}
	if ev.Comparison.Observed != 12 {
		t.Errorf("observed = %v, want 12", ev.Comparison.Observed)
	}
}

func TestNightWindowEntry(t *testing.T) {
	// 23:30 America/New_York in January is 04:30 UTC next day.
	night := time.Date(2026, 1, 16, 4, 30, 0, 0, time.UTC).UnixMilli()
	// 06:00 local is the inclusive end of the window.
	boundary := time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC).UnixMilli()
	// Midday local is far outside it.
	midday := time.Date(2026, 1, 15, 17, 0, 0, 0, time.UTC).UnixMilli()

	e := New(DefaultCatalog(), discard())

	for _, tc := range []struct {
		name   string
		opened int64
		fired  bool
	}{
		{"late night", night, true},
		{"window end inclusive", boundary, true},
		{"midday", midday, false},
	} {
		lc := closedLifecycle("lc1", tc.opened, tc.opened+1000, 0, nil)
		ev := findEvent(e.EvaluateLifecycle(lc), RuleNightWindowEntry)
		if (ev != nil) != tc.fired {
			t.Errorf("%s: fired = %v, want %v", tc.name, ev != nil, tc.fired)
		}
		if ev != nil && ev.TriggerFillID != "lc1-open" {
			t.Errorf("%s: trigger = %s, want the opening fill", tc.name, ev.TriggerFillID)
		}
	}
}

func TestLifecycleMarkers(t *testing.T) {
	e := New(DefaultCatalog(), discard())

	closed := closedLifecycle("lc1", 1000, 2000, 5, nil)
	events := e.EvaluateLifecycle(closed)
	if findEvent(events, RuleOpenCompleted) == nil {
		t.Error("open-completed missing on a closed lifecycle")
	}
	if findEvent(events, RuleCloseCompleted) == nil {
		t.Error("close-completed missing on a closed lifecycle")
	}

	open := closedLifecycle("lc2", 1000, 2000, 0, nil)
	open.Status = domain.LifecycleOpen
	open.ClosedAt = nil
	events = e.EvaluateLifecycle(open)
	if findEvent(events, RuleOpenCompleted) == nil {
		t.Error("open-completed missing on an open lifecycle")
	}
	if findEvent(events, RuleCloseCompleted) != nil {
		t.Error("close-completed fired on an open lifecycle")
	}
}

func TestConsecutiveLosses(t *testing.T) {
	e := New(DefaultCatalog(), discard())

	mk := func(pnls ...float64) []*domain.Lifecycle {
		out := make([]*domain.Lifecycle, 0, len(pnls))
		for i, pnl := range pnls {
			ts := int64((i + 1) * 1000)
			out = append(out, closedLifecycle(string(rune('a'+i)), ts, ts+500, pnl, nil))
		}
		return out
	}

	if ev := findEvent(e.EvaluateAccount(mk(-1, -2)), RuleConsecutiveLosses); ev != nil {
		t.Error("fired with only two losses")
	}
	if ev := findEvent(e.EvaluateAccount(mk(5, -1, -2, 3)), RuleConsecutiveLosses); ev != nil {
		t.Error("fired when the last trade was a win")
	}

	ev := findEvent(e.EvaluateAccount(mk(5, -1, -2, -3)), RuleConsecutiveLosses)
	if ev == nil {
		t.Fatal("did not fire on three trailing losses")
	}
	if ev.Comparison.Observed != 3 || ev.Comparison.Threshold != 3 {
		t.Errorf("comparison = %+v, want observed 3 threshold 3", ev.Comparison)
	}
	if ev.Severity != domain.SeverityP0 {
		t.Errorf("severity = %s, want P0", ev.Severity)
	}
	if len(ev.Evidence) != 3 {
		t.Errorf("evidence refs = %d, want one per losing lifecycle", len(ev.Evidence))
	}

	// A longer trailing run is reported at its full length.
	ev = findEvent(e.EvaluateAccount(mk(-1, -2, -3, -4)), RuleConsecutiveLosses)
	if ev == nil || ev.Comparison.Observed != 4 {
		t.Fatalf("trailing run of 4 reported as %+v", ev)
	}
}

func TestRuleFailureIsIsolated(t *testing.T) {
	equity := 1000.0
	lc := closedLifecycle("lc1", 1000, 2000, -60, &equity)

	broken := domain.Rule{
		ID:        "broken",
		Kind:      domain.KindThreshold,
		Scope:     domain.ScopeLifecycle,
		Severity:  domain.SeverityP0,
		Enabled:   true,
		Threshold: &domain.ThresholdParams{Metric: "no_such_metric", Operator: ">=", Threshold: 1},
	}
	catalog := append([]domain.Rule{broken}, DefaultCatalog()...)

	events := New(catalog, discard()).EvaluateLifecycle(lc)
	if findEvent(events, "broken") != nil {
		t.Error("broken rule produced an event")
	}
	if findEvent(events, RuleBigLossPctEquity) == nil {
		t.Error("a broken rule aborted evaluation of the rest of the catalog")
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	equity := 500.0
	lev := 15.0
	lcs := []*domain.Lifecycle{
		closedLifecycle("a", 1000, 2000, -60, &equity),
		closedLifecycle("b", 3000, 4000, -30, &equity),
		closedLifecycle("c", 5000, 6000, -10, &equity),
	}
	lcs[0].PeakLeverage = &lev

	e := New(DefaultCatalog(), discard())
	first := e.Evaluate(lcs)
	second := e.Evaluate(lcs)
	if !reflect.DeepEqual(first, second) {
		t.Error("same inputs must yield identical events")
	}
}

func TestRecordSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	equity := 1000.0
	lc := closedLifecycle("lc1", 1000, 2000, -60, &equity)

	e := New(DefaultCatalog(), discard())
	events := e.Evaluate([]*domain.Lifecycle{lc})
	if len(events) == 0 {
		t.Fatal("expected events")
	}

	inserted, err := e.Record(ctx, store, events)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if inserted != len(events) {
		t.Fatalf("inserted %d, want %d", inserted, len(events))
	}

	again, err := e.Record(ctx, store, e.Evaluate([]*domain.Lifecycle{lc}))
	if err != nil {
		t.Fatalf("second Record: %v", err)
	}
	if again != 0 {
		t.Errorf("second pass inserted %d events, want 0", again)
	}
}
