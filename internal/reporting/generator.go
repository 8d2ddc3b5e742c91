package reporting

import (
	"context"
	"fmt"
	"log"
	"time"

	"trading-coach/internal/domain"
	"trading-coach/internal/scoring"
	"trading-coach/internal/storage"
)

// Options configures a Generator.
type Options struct {
	Lifecycles storage.LifecycleStore
	Events     storage.EventStore
	Reports    storage.ReportStore

	// Snapshots receives one score row per generated report when set.
	Snapshots storage.ScoreSnapshotStore

	Logger *log.Logger

	// Location is the review timezone used for period boundaries and
	// rendered timestamps. Defaults to UTC.
	Location *time.Location

	Now func() time.Time
}

// Generator builds period summaries and renders them into stored reports.
type Generator struct {
	opts Options
}

// New creates a Generator. Lifecycles, Events and Reports are required.
func New(opts Options) (*Generator, error) {
	if opts.Lifecycles == nil || opts.Events == nil || opts.Reports == nil {
		return nil, fmt.Errorf("reporting: lifecycle, event and report stores are required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Generator{opts: opts}, nil
}

// Location returns the review timezone.
func (g *Generator) Location() *time.Location {
	return g.opts.Location
}

// Run builds the summary for a period, renders it, and upserts the report
// under the period's id. Re-running a period replaces the previous render.
func (g *Generator) Run(ctx context.Context, p Period) (*domain.Report, error) {
	summary, err := g.BuildSummary(ctx, p)
	if err != nil {
		return nil, err
	}

	now := g.opts.Now().UnixMilli()
	report := &domain.Report{
		ID:            p.ID,
		PeriodKind:    p.Kind,
		PeriodStartMs: p.StartMs,
		PeriodEndMs:   p.EndMs,
		Summary:       renderSummaryLine(summary, g.opts.Location),
		Body:          renderMarkdown(summary, g.opts.Location),
		Score:         summary.Score.Score,
		GeneratedAt:   now,
	}
	if err := g.opts.Reports.Upsert(ctx, report); err != nil {
		return nil, fmt.Errorf("store report %s: %w", p.ID, err)
	}

	if g.opts.Snapshots != nil {
		snap := &domain.ScoreSnapshot{
			PeriodKind:     p.Kind,
			PeriodStartMs:  p.StartMs,
			PeriodEndMs:    p.EndMs,
			Score:          summary.Score.Score,
			P0Count:        summary.Score.P0Count,
			P1Count:        summary.Score.P1Count,
			P2Count:        summary.Score.P2Count,
			LifecycleCount: summary.LifecycleCount,
			RealizedPnL:    summary.RealizedPnL,
			ComputedAt:     now,
		}
		if err := g.opts.Snapshots.Insert(ctx, snap); err != nil {
			g.opts.Logger.Printf("WARN: score snapshot for %s not recorded: %v", p.ID, err)
		}
	}
	return report, nil
}

// BuildSummary aggregates the period's closed lifecycles and events.
func (g *Generator) BuildSummary(ctx context.Context, p Period) (*domain.Summary, error) {
	closed, err := g.opts.Lifecycles.GetClosedInRange(ctx, p.StartMs, p.EndMs)
	if err != nil {
		return nil, fmt.Errorf("load lifecycles for %s: %w", p.ID, err)
	}
	events, err := g.opts.Events.GetByTimeRange(ctx, p.StartMs, p.EndMs)
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", p.ID, err)
	}

	sum := &domain.Summary{
		PeriodKind:     p.Kind,
		PeriodStartMs:  p.StartMs,
		PeriodEndMs:    p.EndMs,
		LifecycleCount: len(closed),
		SymbolPnL:      map[string]float64{},
	}

	var holdingTotal int64
	for _, lc := range closed {
		sum.RealizedPnL += lc.RealizedPnL
		sum.TotalFees += lc.TotalFees
		sum.SymbolPnL[lc.Symbol] += lc.RealizedPnL
		holdingTotal += lc.HoldingMs()

		switch {
		case lc.RealizedPnL > 0:
			sum.WinCount++
			if lc.RealizedPnL > sum.BiggestWin {
				sum.BiggestWin = lc.RealizedPnL
			}
		case lc.RealizedPnL < 0:
			sum.LossCount++
			if lc.RealizedPnL < sum.BiggestLoss {
				sum.BiggestLoss = lc.RealizedPnL
			}
		default:
			sum.FlatCount++
		}
	}
	if len(closed) > 0 {
		sum.AvgHoldingMs = holdingTotal / int64(len(closed))
	}

	sum.Score = scoring.Score(events)
	sum.Events = make([]domain.Event, 0, len(events))
	for _, ev := range events {
		sum.Events = append(sum.Events, *ev)
	}
	return sum, nil
}
