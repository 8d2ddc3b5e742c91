package lifecycle

import (
	"context"
	"io"
	"log"
	"math"
	"reflect"
	"testing"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage/memory"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	agg, err := New(Options{
		Fills:      memory.NewFillStore(),
		Lifecycles: memory.NewLifecycleStore(),
		Logger:     log.New(io.Discard, "", 0),
		Exchange:   "bitget",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return agg
}

func fill(id string, ts int64, side domain.Side, price, qty float64, pos domain.PositionSide) *domain.Fill {
	return &domain.Fill{
		FillID:       id,
		OrderID:      "o-" + id,
		Symbol:       "BTC/USDT:USDT",
		Side:         side,
		Price:        price,
		Quantity:     qty,
		TradeSide:    domain.TradeUnknown,
		PositionSide: pos,
		ExecutedAt:   ts,
		Source:       domain.SourceRESTFills,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFoldScaleInAndClose(t *testing.T) {
	agg := newTestAggregator(t)

	fills := []*domain.Fill{
		fill("f1", 1000, domain.SideBuy, 100, 1, domain.PositionLong),
		fill("f2", 2000, domain.SideBuy, 110, 1, domain.PositionLong),
		fill("f3", 3000, domain.SideSell, 90, 2, domain.PositionLong),
	}

	lcs := agg.Fold("BTC/USDT:USDT", fills)
	if len(lcs) != 1 {
		t.Fatalf("expected 1 lifecycle, got %d", len(lcs))
	}
	lc := lcs[0]

	if lc.Status != domain.LifecycleClosed {
		t.Errorf("status = %s, want CLOSED", lc.Status)
	}
	if lc.ClosedAt == nil || *lc.ClosedAt != 3000 {
		t.Errorf("closed at = %v, want 3000", lc.ClosedAt)
	}
	if !almostEqual(lc.AvgEntryPrice, 105) {
		t.Errorf("avg entry = %v, want 105", lc.AvgEntryPrice)
	}
	if !almostEqual(lc.AvgExitPrice, 90) {
		t.Errorf("avg exit = %v, want 90", lc.AvgExitPrice)
	}
	if !almostEqual(lc.RealizedPnL, -30) {
		t.Errorf("realized pnl = %v, want -30", lc.RealizedPnL)
	}
	if !almostEqual(lc.NetQuantity, 0) {
		t.Errorf("net quantity = %v, want 0", lc.NetQuantity)
	}
	if !almostEqual(lc.PeakNotional, 220) {
		t.Errorf("peak notional = %v, want 220", lc.PeakNotional)
	}
	if !almostEqual(lc.MaxFavorableExcursion, 10) {
		t.Errorf("mfe = %v, want 10", lc.MaxFavorableExcursion)
	}
	if !almostEqual(lc.MaxAdverseExcursion, -30) {
		t.Errorf("mae = %v, want -30", lc.MaxAdverseExcursion)
	}
	if lc.AddsCount != 1 || lc.ReductionsCount != 1 {
		t.Errorf("adds/reductions = %d/%d, want 1/1", lc.AddsCount, lc.ReductionsCount)
	}
	if lc.EntryLabel != "scaled in 2x" {
		t.Errorf("entry label = %q", lc.EntryLabel)
	}
	if lc.ExitLabel != "single exit" {
		t.Errorf("exit label = %q", lc.ExitLabel)
	}

	wantRoles := []domain.FillRole{domain.RoleOpen, domain.RoleScale, domain.RoleClose}
	wantNets := []float64{1, 2, 0}
	if len(lc.Fills) != 3 {
		t.Fatalf("constituents = %d, want 3", len(lc.Fills))
	}
	for i, cf := range lc.Fills {
		if cf.Role != wantRoles[i] {
			t.Errorf("fill %d role = %s, want %s", i, cf.Role, wantRoles[i])
		}
		if !almostEqual(cf.NetAfter, wantNets[i]) {
			t.Errorf("fill %d net after = %v, want %v", i, cf.NetAfter, wantNets[i])
		}
	}
}

func TestFoldExactZeroClose(t *testing.T) {
	agg := newTestAggregator(t)

	lcs := agg.Fold("BTC/USDT:USDT", []*domain.Fill{
		fill("f1", 1000, domain.SideBuy, 100, 0.3, domain.PositionLong),
		fill("f2", 5000, domain.SideSell, 120, 0.3, domain.PositionLong),
	})
	if len(lcs) != 1 {
		t.Fatalf("expected 1 lifecycle, got %d", len(lcs))
	}
	lc := lcs[0]
	if lc.Status != domain.LifecycleClosed {
		t.Fatalf("status = %s, want CLOSED", lc.Status)
	}
	if lc.ClosedAt == nil || *lc.ClosedAt != 5000 {
		t.Errorf("closed at = %v, want 5000", lc.ClosedAt)
	}
	if !almostEqual(lc.RealizedPnL, 6) {
		t.Errorf("realized pnl = %v, want 6", lc.RealizedPnL)
	}
}

func TestFoldShortLifecycle(t *testing.T) {
	agg := newTestAggregator(t)

	lcs := agg.Fold("BTC/USDT:USDT", []*domain.Fill{
		fill("f1", 1000, domain.SideSell, 200, 1, domain.PositionShort),
		fill("f2", 2000, domain.SideBuy, 150, 1, domain.PositionShort),
	})
	if len(lcs) != 1 {
		t.Fatalf("expected 1 lifecycle, got %d", len(lcs))
	}
	lc := lcs[0]
	if lc.PositionSide != domain.PositionShort {
		t.Errorf("position side = %s, want short", lc.PositionSide)
	}
	if !almostEqual(lc.RealizedPnL, 50) {
		t.Errorf("realized pnl = %v, want 50", lc.RealizedPnL)
	}
	if !almostEqual(lc.Fills[0].NetAfter, -1) {
		t.Errorf("net after open = %v, want -1", lc.Fills[0].NetAfter)
	}
}

func TestFoldFlipSplitsFill(t *testing.T) {
	agg := newTestAggregator(t)

	long1 := fill("f1", 1000, domain.SideBuy, 100, 2, domain.PositionLong)
	long1.SideInferred = true
	flipFill := fill("f2", 2000, domain.SideSell, 110, 3, domain.PositionLong)
	flipFill.SideInferred = true

	lcs := agg.Fold("BTC/USDT:USDT", []*domain.Fill{long1, flipFill})
	if len(lcs) != 2 {
		t.Fatalf("expected 2 lifecycles, got %d", len(lcs))
	}

	closed, opened := lcs[0], lcs[1]
	if closed.Status != domain.LifecycleClosed || closed.PositionSide != domain.PositionLong {
		t.Fatalf("first leg = %s/%s, want CLOSED/long", closed.Status, closed.PositionSide)
	}
	if opened.Status != domain.LifecycleOpen || opened.PositionSide != domain.PositionShort {
		t.Fatalf("second leg = %s/%s, want OPEN/short", opened.Status, opened.PositionSide)
	}
	if closed.LifecycleID == opened.LifecycleID {
		t.Error("flip legs must have distinct ids")
	}

	// The flip fill is split proportionally between the two legs.
	closing := closed.Fills[len(closed.Fills)-1]
	if closing.FillID != "f2" || !almostEqual(closing.Quantity, 2) {
		t.Errorf("closing portion = %s/%v, want f2/2", closing.FillID, closing.Quantity)
	}
	if len(opened.Fills) != 1 {
		t.Fatalf("second leg constituents = %d, want 1", len(opened.Fills))
	}
	openPortion := opened.Fills[0]
	if openPortion.FillID != "f2" || !almostEqual(openPortion.Quantity, 1) {
		t.Errorf("opening portion = %s/%v, want f2/1", openPortion.FillID, openPortion.Quantity)
	}
	if openPortion.Role != domain.RoleOpen {
		t.Errorf("opening portion role = %s, want open", openPortion.Role)
	}
	if !almostEqual(opened.NetQuantity, -1) {
		t.Errorf("second leg net = %v, want -1", opened.NetQuantity)
	}
	if !almostEqual(closed.RealizedPnL, 20) {
		t.Errorf("first leg pnl = %v, want 20", closed.RealizedPnL)
	}
	if closed.ClosedAt == nil || *closed.ClosedAt != opened.OpenedAt {
		t.Error("flip legs must meet at the flip fill's time")
	}
}

func TestFoldIdempotent(t *testing.T) {
	agg := newTestAggregator(t)

	fills := []*domain.Fill{
		fill("f1", 1000, domain.SideBuy, 100, 1, domain.PositionLong),
		fill("f2", 2000, domain.SideBuy, 110, 2, domain.PositionLong),
		fill("f3", 3000, domain.SideSell, 105, 1.5, domain.PositionLong),
		fill("f4", 4000, domain.SideSell, 95, 1.5, domain.PositionLong),
		fill("f5", 5000, domain.SideSell, 300, 1, domain.PositionShort),
	}

	first := agg.Fold("BTC/USDT:USDT", fills)
	second := agg.Fold("BTC/USDT:USDT", fills)
	if !reflect.DeepEqual(first, second) {
		t.Error("re-folding the same fills must reproduce identical lifecycles")
	}
}

func TestFoldTieBreakByFillID(t *testing.T) {
	agg := newTestAggregator(t)

	// Same timestamp: id order decides, so "a" opens and "b" closes
	// regardless of input order.
	a := fill("a", 1000, domain.SideBuy, 100, 1, domain.PositionLong)
	b := fill("b", 1000, domain.SideSell, 110, 1, domain.PositionLong)

	forward := agg.Fold("BTC/USDT:USDT", []*domain.Fill{a, b})
	reversed := agg.Fold("BTC/USDT:USDT", []*domain.Fill{b, a})

	if !reflect.DeepEqual(forward, reversed) {
		t.Fatal("fold must not depend on input order")
	}
	if len(forward) != 1 || forward[0].Status != domain.LifecycleClosed {
		t.Fatalf("expected one closed lifecycle, got %+v", forward)
	}
	if forward[0].Fills[0].FillID != "a" {
		t.Errorf("opening fill = %s, want a", forward[0].Fills[0].FillID)
	}
}

func TestFoldNetAfterReplay(t *testing.T) {
	agg := newTestAggregator(t)

	lcs := agg.Fold("BTC/USDT:USDT", []*domain.Fill{
		fill("f1", 1000, domain.SideBuy, 100, 1, domain.PositionLong),
		fill("f2", 2000, domain.SideBuy, 102, 0.5, domain.PositionLong),
		fill("f3", 3000, domain.SideSell, 104, 0.7, domain.PositionLong),
		fill("f4", 4000, domain.SideSell, 99, 0.8, domain.PositionLong),
	})
	if len(lcs) != 1 {
		t.Fatalf("expected 1 lifecycle, got %d", len(lcs))
	}

	net := 0.0
	for i, cf := range lcs[0].Fills {
		if cf.Side == domain.SideBuy {
			net += cf.Quantity
		} else {
			net -= cf.Quantity
		}
		if !almostEqual(net, cf.NetAfter) {
			t.Errorf("fill %d: replayed net %v != recorded %v", i, net, cf.NetAfter)
		}
	}
	if !almostEqual(net, lcs[0].NetQuantity) {
		t.Errorf("final replayed net %v != lifecycle net %v", net, lcs[0].NetQuantity)
	}
}

func TestFoldAnomalousReduceExcluded(t *testing.T) {
	agg := newTestAggregator(t)

	// A sell on a flat long book has no lifecycle to reduce.
	lcs := agg.Fold("BTC/USDT:USDT", []*domain.Fill{
		fill("f1", 1000, domain.SideSell, 100, 1, domain.PositionLong),
	})
	if len(lcs) != 0 {
		t.Fatalf("expected 0 lifecycles, got %d", len(lcs))
	}

	// The anomalous fill must not poison later aggregation either.
	lcs = agg.Fold("BTC/USDT:USDT", []*domain.Fill{
		fill("f1", 1000, domain.SideSell, 100, 1, domain.PositionLong),
		fill("f2", 2000, domain.SideBuy, 100, 1, domain.PositionLong),
		fill("f3", 3000, domain.SideSell, 110, 1, domain.PositionLong),
	})
	if len(lcs) != 1 {
		t.Fatalf("expected 1 lifecycle, got %d", len(lcs))
	}
	if !almostEqual(lcs[0].RealizedPnL, 10) {
		t.Errorf("realized pnl = %v, want 10", lcs[0].RealizedPnL)
	}
}

func TestFoldExplicitSideCrossingIsClipped(t *testing.T) {
	agg := newTestAggregator(t)

	// Exchange-reported hedge sides cannot flip. The excess is dropped.
	lcs := agg.Fold("BTC/USDT:USDT", []*domain.Fill{
		fill("f1", 1000, domain.SideBuy, 100, 1, domain.PositionLong),
		fill("f2", 2000, domain.SideSell, 110, 3, domain.PositionLong),
	})
	if len(lcs) != 1 {
		t.Fatalf("expected 1 lifecycle, got %d", len(lcs))
	}
	lc := lcs[0]
	if lc.Status != domain.LifecycleClosed {
		t.Errorf("status = %s, want CLOSED", lc.Status)
	}
	if !almostEqual(lc.RealizedPnL, 10) {
		t.Errorf("realized pnl = %v, want 10", lc.RealizedPnL)
	}
	closing := lc.Fills[len(lc.Fills)-1]
	if !almostEqual(closing.Quantity, 1) {
		t.Errorf("closing portion = %v, want 1 (excess clipped)", closing.Quantity)
	}
}

func TestFoldSymbolPersistsLifecycles(t *testing.T) {
	ctx := context.Background()
	fills := memory.NewFillStore()
	lifecycles := memory.NewLifecycleStore()
	equity := 1000.0

	agg, err := New(Options{
		Fills:      fills,
		Lifecycles: lifecycles,
		Logger:     log.New(io.Discard, "", 0),
		Equity:     &equity,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seed := []*domain.Fill{
		fill("f1", 1000, domain.SideBuy, 100, 1, domain.PositionLong),
		fill("f2", 2000, domain.SideBuy, 110, 1, domain.PositionLong),
		fill("f3", 3000, domain.SideSell, 90, 2, domain.PositionLong),
	}
	if _, err := fills.InsertBulk(ctx, seed); err != nil {
		t.Fatalf("seed fills: %v", err)
	}

	n, err := agg.FoldSymbol(ctx, "BTC/USDT:USDT")
	if err != nil {
		t.Fatalf("FoldSymbol: %v", err)
	}
	if n != 1 {
		t.Fatalf("folded %d lifecycles, want 1", n)
	}

	stored, err := lifecycles.GetBySymbol(ctx, "BTC/USDT:USDT")
	if err != nil {
		t.Fatalf("GetBySymbol: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored %d lifecycles, want 1", len(stored))
	}
	lc := stored[0]
	if lc.EquityAtEntry == nil || *lc.EquityAtEntry != 1000 {
		t.Errorf("equity at entry = %v, want 1000", lc.EquityAtEntry)
	}
	if lc.PeakLeverage == nil || !almostEqual(*lc.PeakLeverage, 0.22) {
		t.Errorf("peak leverage = %v, want 0.22", lc.PeakLeverage)
	}

	// Re-folding must not change anything, and the recorded entry snapshot
	// must survive even if the live equity moved.
	*agg.opts.Equity = 500
	if _, err := agg.FoldSymbol(ctx, "BTC/USDT:USDT"); err != nil {
		t.Fatalf("re-fold: %v", err)
	}
	again, err := lifecycles.GetBySymbol(ctx, "BTC/USDT:USDT")
	if err != nil {
		t.Fatalf("GetBySymbol: %v", err)
	}
	if !reflect.DeepEqual(stored, again) {
		t.Error("re-fold must leave persisted lifecycles unchanged")
	}

	// An empty symbol folds to nothing without error.
	n, err = agg.FoldSymbol(ctx, "ETH/USDT:USDT")
	if err != nil || n != 0 {
		t.Errorf("empty symbol fold = %d, %v, want 0, nil", n, err)
	}
}
