// Package scheduler provides the review runner and its timer loop.
// A review pass is: sync → evaluate rules → record events → generate
// report → notify. At most one run per kind is in flight at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"trading-coach/internal/domain"
	"trading-coach/internal/observability"
	"trading-coach/internal/reporting"
	"trading-coach/internal/rules"
	"trading-coach/internal/storage"
	"trading-coach/internal/syncer"
)

// ErrRunInFlight is returned when a run of the same kind is already in
// progress. Overlapping triggers are skipped, never queued.
var ErrRunInFlight = errors.New("scheduler: run already in flight")

// DefaultStaleAfter bounds how long a persisted unfinished run blocks new
// runs of the same kind. Past it the old run is assumed crashed.
const DefaultStaleAfter = 2 * time.Hour

// Syncer runs one ledger sync pass over the given symbols.
type Syncer interface {
	Sync(ctx context.Context, symbols []string, reset bool) (*syncer.Report, error)
}

// Notifier delivers a rendered report to an external channel.
type Notifier interface {
	Send(ctx context.Context, summary, filename, attachment string) error
}

// TextSender is the optional plain-text path of a Notifier. Notifiers
// that implement it receive sync failure alerts.
type TextSender interface {
	SendText(ctx context.Context, content string) error
}

// Options configures the Runner. Sync, Symbols, Lifecycles, Events,
// Evaluator, Generator and RunState are required; Notifier is optional.
type Options struct {
	Sync       Syncer
	Symbols    []string
	Lifecycles storage.LifecycleStore
	Events     storage.EventStore
	Evaluator  *rules.Evaluator
	Generator  *reporting.Generator
	Notifier   Notifier
	RunState   storage.RunStateStore
	Logger     *log.Logger

	// StaleAfter overrides DefaultStaleAfter.
	StaleAfter time.Duration

	Now func() time.Time
}

// Runner executes sync and review passes with a per-kind overlap guard.
// The guard is an in-process flag backed by persisted start/finish
// timestamps, so overlap decisions survive across processes.
type Runner struct {
	opts Options

	mu       stdsync.Mutex
	inFlight map[string]bool
}

// New creates a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Sync == nil || opts.Lifecycles == nil || opts.Events == nil ||
		opts.Evaluator == nil || opts.Generator == nil || opts.RunState == nil {
		return nil, fmt.Errorf("scheduler: missing required option")
	}
	if len(opts.Symbols) == 0 {
		return nil, fmt.Errorf("scheduler: no symbols configured")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts, inFlight: make(map[string]bool)}, nil
}

// RunSync executes one guarded manual sync pass.
func (r *Runner) RunSync(ctx context.Context, reset bool) (*syncer.Report, error) {
	if err := r.acquire(ctx, "sync"); err != nil {
		return nil, err
	}
	defer r.release(ctx, "sync")

	return r.runSync(ctx, reset)
}

// RunReview executes one guarded review pass of the given period kind
// ("daily", "weekly" or "monthly").
func (r *Runner) RunReview(ctx context.Context, kind string) (*domain.Report, error) {
	if err := r.acquire(ctx, kind); err != nil {
		return nil, err
	}
	defer r.release(ctx, kind)

	start := r.opts.Now()
	report, err := r.review(ctx, kind)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordRun(kind, status, r.opts.Now().Sub(start).Seconds())
	return report, err
}

func (r *Runner) review(ctx context.Context, kind string) (*domain.Report, error) {
	period, err := reporting.PeriodFor(kind, r.opts.Now(), r.opts.Generator.Location())
	if err != nil {
		return nil, err
	}
	r.opts.Logger.Printf("[review] %s: starting", period.ID)

	if _, err := r.runSync(ctx, false); err != nil {
		return nil, fmt.Errorf("sync before review: %w", err)
	}

	lifecycles, err := r.activeLifecycles(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("load lifecycles: %w", err)
	}
	r.opts.Logger.Printf("[review] %s: %d lifecycles with activity", period.ID, len(lifecycles))

	events := r.opts.Evaluator.Evaluate(lifecycles)
	recorded, err := r.opts.Evaluator.Record(ctx, r.opts.Events, events)
	if err != nil {
		return nil, fmt.Errorf("record events: %w", err)
	}
	for _, sev := range []domain.Severity{domain.SeverityP0, domain.SeverityP1, domain.SeverityP2} {
		n := 0
		for _, e := range events {
			if e.Severity == sev {
				n++
			}
		}
		observability.RecordEvents(string(sev), n)
	}
	r.opts.Logger.Printf("[review] %s: %d events emitted, %d new", period.ID, len(events), recorded)

	report, err := r.opts.Generator.Run(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	observability.RecordScore(kind, report.Score)

	if r.opts.Notifier != nil {
		filename := strings.ReplaceAll(period.ID, ":", "-") + ".md"
		if err := r.opts.Notifier.Send(ctx, report.Summary, filename, report.Body); err != nil {
			r.opts.Logger.Printf("WARN: report %s not delivered: %v", period.ID, err)
		} else {
			observability.DefaultMetrics.ReportsSent.Inc()
		}
	}

	observability.DefaultMetrics.LastSuccessfulReview.SetToCurrentTime()
	r.opts.Logger.Printf("[review] %s: score %d/100, report stored", period.ID, report.Score)
	return report, nil
}

func (r *Runner) runSync(ctx context.Context, reset bool) (*syncer.Report, error) {
	report, err := r.opts.Sync.Sync(ctx, r.opts.Symbols, reset)
	if err != nil {
		return nil, err
	}
	observability.RecordSyncReport(report.FillsIngested, report.DuplicatesSkipped,
		report.PagesFetched, report.IncompleteWindows, report.LifecyclesFound)
	for _, symbol := range report.FailedSymbols {
		observability.RecordSymbolSyncError(symbol)
	}
	if len(report.FailedSymbols) == 0 {
		observability.DefaultMetrics.LastSuccessfulSync.SetToCurrentTime()
	} else if ts, ok := r.opts.Notifier.(TextSender); ok {
		msg := fmt.Sprintf("sync: %d symbols failed: %s",
			len(report.FailedSymbols), strings.Join(report.FailedSymbols, ", "))
		if err := ts.SendText(ctx, msg); err != nil {
			r.opts.Logger.Printf("WARN: sync alert not delivered: %v", err)
		}
	}
	r.opts.Logger.Printf("[sync] %d fills ingested, %d duplicates, %d pages, %d lifecycles, %d failed symbols",
		report.FillsIngested, report.DuplicatesSkipped, report.PagesFetched,
		report.LifecyclesFound, len(report.FailedSymbols))
	return report, nil
}

// activeLifecycles returns every lifecycle with at least one fill inside
// the period, across the configured symbols.
func (r *Runner) activeLifecycles(ctx context.Context, p reporting.Period) ([]*domain.Lifecycle, error) {
	var active []*domain.Lifecycle
	for _, symbol := range r.opts.Symbols {
		lcs, err := r.opts.Lifecycles.GetBySymbol(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("lifecycles for %s: %w", symbol, err)
		}
		for _, lc := range lcs {
			if lc.HasActivityBetween(p.StartMs, p.EndMs+1) {
				active = append(active, lc)
			}
		}
	}
	return active, nil
}

func runStateKey(kind, field string) string {
	return "run:" + kind + ":" + field
}

// acquire takes the per-kind run slot. It fails with ErrRunInFlight when
// the in-process flag is set or the persisted state shows a non-stale run
// that started and never finished.
func (r *Runner) acquire(ctx context.Context, kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight[kind] {
		return ErrRunInFlight
	}

	startedAt, err := r.stateMs(ctx, runStateKey(kind, "started_at"))
	if err != nil {
		return fmt.Errorf("read run state: %w", err)
	}
	finishedAt, err := r.stateMs(ctx, runStateKey(kind, "finished_at"))
	if err != nil {
		return fmt.Errorf("read run state: %w", err)
	}
	now := r.opts.Now()
	if startedAt > finishedAt && now.UnixMilli()-startedAt < r.opts.StaleAfter.Milliseconds() {
		return ErrRunInFlight
	}

	runID := uuid.NewString()
	if err := r.opts.RunState.Set(ctx, runStateKey(kind, "run_id"), runID); err != nil {
		return fmt.Errorf("persist run state: %w", err)
	}
	if err := r.opts.RunState.Set(ctx, runStateKey(kind, "started_at"), strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("persist run state: %w", err)
	}
	r.inFlight[kind] = true
	r.opts.Logger.Printf("[run] %s %s started", kind, runID)
	return nil
}

func (r *Runner) release(ctx context.Context, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.inFlight, kind)
	finished := strconv.FormatInt(r.opts.Now().UnixMilli(), 10)
	if err := r.opts.RunState.Set(ctx, runStateKey(kind, "finished_at"), finished); err != nil {
		r.opts.Logger.Printf("WARN: run state for %s not persisted: %v", kind, err)
	}
}

// stateMs reads a unix-ms run state value, treating unset as zero.
func (r *Runner) stateMs(ctx context.Context, key string) (int64, error) {
	v, err := r.opts.RunState.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("run state %s: %w", key, err)
	}
	return ms, nil
}
