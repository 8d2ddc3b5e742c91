package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	stdsync "sync"
	"time"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// Default tuning values.
const (
	DefaultLookback          = 30 * 24 * time.Hour
	DefaultWindowWidth       = 7 * 24 * time.Hour
	DefaultPageLimit         = 100
	DefaultMaxPagesPerWindow = 50
	DefaultWorkers           = 4
)

// Folder re-aggregates one symbol's ledger into lifecycles after its fills
// are committed, returning how many lifecycles were persisted.
type Folder interface {
	FoldSymbol(ctx context.Context, symbol string) (int, error)
}

// Options configures the Synchronizer. Fetcher, Resolver, Fills, Cursors,
// Lifecycles and Folder are required.
type Options struct {
	Fetcher    Fetcher
	Resolver   DirectionResolver
	Fills      storage.FillStore
	Cursors    storage.CursorStore
	Lifecycles storage.LifecycleStore
	Folder     Folder
	Logger     *log.Logger

	// Lookback is re-covered on every run, even resumed ones, so missed
	// scheduler runs never leave a gap.
	Lookback    time.Duration
	WindowWidth time.Duration
	PageLimit   int
	// MaxPagesPerWindow bounds paging per window. Hitting it abandons the
	// window with a warning instead of looping forever.
	MaxPagesPerWindow int
	// Workers bounds concurrent symbol fetches. Each symbol owns disjoint
	// cursor and lifecycle state; the ledger's fill-id uniqueness is the
	// only shared constraint.
	Workers int
	// StopAfterLifecycles halts the whole run once this many lifecycles
	// have been persisted. Zero means unlimited.
	StopAfterLifecycles int

	Now func() time.Time
}

// Report summarizes one sync run. Always returned complete, with failed
// units listed rather than aborting the run.
type Report struct {
	FillsIngested     int
	DuplicatesSkipped int
	PagesFetched      int
	LifecyclesFound   int
	IncompleteWindows int
	FailedSymbols     []string
}

// Synchronizer drives the fetcher across backfill windows per symbol,
// deduplicates into the ledger, and advances per-symbol cursors only past
// fully committed windows.
type Synchronizer struct {
	opts Options
}

// New creates a Synchronizer, applying defaults for zero-valued tuning.
func New(opts Options) (*Synchronizer, error) {
	if opts.Fetcher == nil || opts.Resolver == nil || opts.Fills == nil ||
		opts.Cursors == nil || opts.Lifecycles == nil || opts.Folder == nil {
		return nil, fmt.Errorf("syncer: missing required option")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.WindowWidth <= 0 {
		opts.WindowWidth = DefaultWindowWidth
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = DefaultPageLimit
	}
	if opts.MaxPagesPerWindow <= 0 {
		opts.MaxPagesPerWindow = DefaultMaxPagesPerWindow
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Synchronizer{opts: opts}, nil
}

// Sync runs one pass over the given symbols. With reset set, cursor,
// ledger and lifecycle state for those symbols is cleared first.
// A single symbol's failure is recorded in the report, not propagated.
func (s *Synchronizer) Sync(ctx context.Context, symbols []string, reset bool) (*Report, error) {
	if reset {
		if err := s.reset(ctx, symbols); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu     stdsync.Mutex
		wg     stdsync.WaitGroup
		report Report
	)
	sem := make(chan struct{}, s.opts.Workers)

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			sr, err := s.syncSymbol(ctx, symbol)

			mu.Lock()
			defer mu.Unlock()
			report.FillsIngested += sr.fillsIngested
			report.DuplicatesSkipped += sr.duplicatesSkipped
			report.PagesFetched += sr.pagesFetched
			report.LifecyclesFound += sr.lifecyclesFound
			report.IncompleteWindows += sr.incompleteWindows
			if err != nil {
				s.opts.Logger.Printf("ERROR: sync %s: %v", symbol, err)
				report.FailedSymbols = append(report.FailedSymbols, symbol)
			}
			if s.opts.StopAfterLifecycles > 0 && report.LifecyclesFound >= s.opts.StopAfterLifecycles {
				s.opts.Logger.Printf("lifecycle cap %d reached, stopping run", s.opts.StopAfterLifecycles)
				cancel()
			}
		}(symbol)
	}

	wg.Wait()
	return &report, nil
}

type symbolReport struct {
	fillsIngested     int
	duplicatesSkipped int
	pagesFetched      int
	lifecyclesFound   int
	incompleteWindows int
}

func (s *Synchronizer) syncSymbol(ctx context.Context, symbol string) (symbolReport, error) {
	var sr symbolReport
	now := s.opts.Now().UnixMilli()

	start := now - s.opts.Lookback.Milliseconds()
	cursor, err := s.opts.Cursors.Get(ctx, symbol)
	switch {
	case err == nil:
		// Resume from the watermark when it is older than the lookback
		// horizon, so an outage longer than the lookback cannot skip
		// fills. The ledger dedups any overlap with prior runs.
		if cursor.WatermarkMs > 0 && cursor.WatermarkMs < start {
			start = cursor.WatermarkMs
		}
	case errors.Is(err, storage.ErrNotFound):
		cursor = &domain.SyncCursor{Symbol: symbol}
	default:
		return sr, fmt.Errorf("load cursor: %w", err)
	}

	// Once a window is left incomplete the watermark freezes there; later
	// windows still ingest fills but stay re-coverable by the next run.
	advance := true

	for _, w := range planWindows(start, now, s.opts.WindowWidth.Milliseconds()) {
		if ctx.Err() != nil {
			return sr, ctx.Err()
		}

		complete, lastFillID, err := s.syncWindow(ctx, symbol, w, &sr)
		if err != nil {
			sr.incompleteWindows++
			return sr, fmt.Errorf("window [%d, %d]: %w", w.StartMs, w.EndMs, err)
		}
		if !complete {
			sr.incompleteWindows++
			advance = false
			continue
		}

		if advance {
			cursor.Symbol = symbol
			cursor.WatermarkMs = w.EndMs
			if lastFillID != "" {
				cursor.LastFillID = lastFillID
			}
			cursor.WindowStartMs = w.StartMs
			cursor.WindowEndMs = w.EndMs
			cursor.UpdatedAt = s.opts.Now().UnixMilli()
			if err := s.opts.Cursors.Upsert(ctx, cursor); err != nil {
				return sr, fmt.Errorf("advance cursor: %w", err)
			}
		}
	}

	found, err := s.opts.Folder.FoldSymbol(ctx, symbol)
	if err != nil {
		return sr, fmt.Errorf("fold lifecycles: %w", err)
	}
	sr.lifecyclesFound = found

	return sr, nil
}

// syncWindow pages one window into the ledger. Returns complete=false when
// the page ceiling was hit; an error means the fetch failed after the
// client's own retries were exhausted.
func (s *Synchronizer) syncWindow(ctx context.Context, symbol string, w window, sr *symbolReport) (complete bool, lastFillID string, err error) {
	pageToken := ""

	for page := 0; page < s.opts.MaxPagesPerWindow; page++ {
		fills, next, err := s.opts.Fetcher.ListFills(ctx, symbol, w.StartMs, w.EndMs, s.opts.PageLimit, pageToken)
		if err != nil {
			return false, lastFillID, err
		}
		sr.pagesFetched++

		if len(fills) == 0 {
			return true, lastFillID, nil
		}

		if err := s.opts.Resolver.Resolve(ctx, fills); err != nil {
			return false, lastFillID, fmt.Errorf("resolve direction: %w", err)
		}

		inserted, err := s.opts.Fills.InsertBulk(ctx, fills)
		if err != nil {
			return false, lastFillID, fmt.Errorf("insert fills: %w", err)
		}
		sr.fillsIngested += inserted
		sr.duplicatesSkipped += len(fills) - inserted
		lastFillID = fills[len(fills)-1].FillID

		if next == "" || next == pageToken || len(fills) < s.opts.PageLimit {
			return true, lastFillID, nil
		}
		pageToken = next
	}

	s.opts.Logger.Printf("WARN: page ceiling %d hit for %s window [%d, %d], window abandoned",
		s.opts.MaxPagesPerWindow, symbol, w.StartMs, w.EndMs)
	return false, lastFillID, nil
}

// reset destructively clears cursor, ledger and lifecycle state for the
// given symbols.
func (s *Synchronizer) reset(ctx context.Context, symbols []string) error {
	for _, symbol := range symbols {
		fills, err := s.opts.Fills.DeleteBySymbol(ctx, symbol)
		if err != nil {
			return fmt.Errorf("reset fills for %s: %w", symbol, err)
		}
		lifecycles, err := s.opts.Lifecycles.DeleteBySymbol(ctx, symbol)
		if err != nil {
			return fmt.Errorf("reset lifecycles for %s: %w", symbol, err)
		}
		if err := s.opts.Cursors.Delete(ctx, symbol); err != nil {
			return fmt.Errorf("reset cursor for %s: %w", symbol, err)
		}
		s.opts.Logger.Printf("RESET %s: dropped %d fills, %d lifecycles, cursor cleared", symbol, fills, lifecycles)
	}
	return nil
}
