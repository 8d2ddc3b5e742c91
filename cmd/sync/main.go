// Package main runs one sync pass: fetch execution fills from Bitget,
// deduplicate them into the ledger and fold them into lifecycles.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trading-coach/internal/bitget"
	"trading-coach/internal/config"
	"trading-coach/internal/lifecycle"
	"trading-coach/internal/storage"
	"trading-coach/internal/storage/memory"
	"trading-coach/internal/storage/migrations"
	pgstore "trading-coach/internal/storage/postgres"
	"trading-coach/internal/syncer"
)

// syncStores is the storage surface one sync pass needs.
type syncStores struct {
	fills      storage.FillStore
	cursors    storage.CursorStore
	orderSides storage.OrderSideStore
	lifecycles storage.LifecycleStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	symbols := flag.String("symbols", strings.Join(cfg.Symbols, ","), "Comma-separated symbols, e.g. BTCUSDT,ETHUSDT")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", cfg.UseMemory, "Use in-memory storage instead of PostgreSQL")
	reset := flag.Bool("reset", false, "Destructively clear cursor, ledger and lifecycle state first")
	lookback := flag.Duration("lookback", cfg.Lookback, "How far back to cover (0 = default)")
	window := flag.Duration("window", cfg.WindowWidth, "Backfill window width (0 = default)")
	pageLimit := flag.Int("page-limit", cfg.PageLimit, "Fills per page (0 = default)")
	maxPages := flag.Int("max-pages", cfg.MaxPagesPerWindow, "Page ceiling per window (0 = default)")
	workers := flag.Int("workers", cfg.Workers, "Concurrent symbol fetches (0 = default)")
	resolver := flag.String("resolver", cfg.ResolverMode, "Direction resolution: rest or heuristic")
	stopAfter := flag.Int("stop-after-lifecycles", 0, "Stop the run once this many lifecycles are folded (0 = unlimited)")
	flag.Parse()

	logger := log.New(os.Stdout, "[sync] ", log.LstdFlags)

	if err := cfg.ValidateExchange(); err != nil {
		logger.Fatal(err)
	}
	symbolList := splitSymbols(*symbols)
	if len(symbolList) == 0 {
		logger.Fatal("no symbols given")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (or --use-memory)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatalf("create stores: %v", err)
	}
	defer cleanup()

	client := newExchangeClient(cfg)

	agg, err := lifecycle.New(lifecycle.Options{
		Fills:      stores.fills,
		Lifecycles: stores.lifecycles,
		Logger:     logger,
		Equity:     fetchEquity(ctx, client, logger),
	})
	if err != nil {
		logger.Fatalf("create aggregator: %v", err)
	}

	sync, err := syncer.New(syncer.Options{
		Fetcher:             syncer.NewBitgetFetcher(client),
		Resolver:            newResolver(*resolver, client, stores.orderSides, logger),
		Fills:               stores.fills,
		Cursors:             stores.cursors,
		Lifecycles:          stores.lifecycles,
		Folder:              agg,
		Logger:              logger,
		Lookback:            *lookback,
		WindowWidth:         *window,
		PageLimit:           *pageLimit,
		MaxPagesPerWindow:   *maxPages,
		Workers:             *workers,
		StopAfterLifecycles: *stopAfter,
	})
	if err != nil {
		logger.Fatalf("create synchronizer: %v", err)
	}

	start := time.Now()
	report, err := sync.Sync(ctx, symbolList, *reset)
	if err != nil {
		logger.Fatalf("sync: %v", err)
	}

	logger.Printf("done in %v: %d fills ingested, %d duplicates skipped, %d pages, %d lifecycles, %d incomplete windows",
		time.Since(start), report.FillsIngested, report.DuplicatesSkipped,
		report.PagesFetched, report.LifecyclesFound, report.IncompleteWindows)
	if len(report.FailedSymbols) > 0 {
		logger.Fatalf("failed symbols: %v", report.FailedSymbols)
	}
}

func createStores(ctx context.Context, postgresDSN string, useMemory bool) (*syncStores, func(), error) {
	if useMemory {
		stores := &syncStores{
			fills:      memory.NewFillStore(),
			cursors:    memory.NewCursorStore(),
			orderSides: memory.NewOrderSideStore(),
			lifecycles: memory.NewLifecycleStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	stores := &syncStores{
		fills:      pgstore.NewFillStore(pool),
		cursors:    pgstore.NewCursorStore(pool),
		orderSides: pgstore.NewOrderSideStore(pool),
		lifecycles: pgstore.NewLifecycleStore(pool),
	}
	return stores, pool.Close, nil
}

func newExchangeClient(cfg *config.Config) *bitget.Client {
	creds := bitget.Credentials{
		APIKey:     cfg.BitgetAPIKey,
		APISecret:  cfg.BitgetSecret,
		Passphrase: cfg.BitgetPassphrase,
	}
	var opts []bitget.ClientOption
	if cfg.BitgetBaseURL != "" {
		opts = append(opts, bitget.WithBaseURL(cfg.BitgetBaseURL))
	}
	return bitget.NewClient(creds, opts...)
}

func newResolver(mode string, client *bitget.Client, cache storage.OrderSideStore, logger *log.Logger) syncer.DirectionResolver {
	if mode == "heuristic" {
		return syncer.NewHeuristicResolver()
	}
	return syncer.NewOrderDetailResolver(client, cache, bitget.RawSymbol, logger)
}

// fetchEquity reads the account equity once. Failures leave equity unknown,
// which keeps equity-relative rules silent rather than wrong.
func fetchEquity(ctx context.Context, client *bitget.Client, logger *log.Logger) *float64 {
	snapshot, err := client.GetAccountSnapshot(ctx)
	if err != nil {
		logger.Printf("WARN: account snapshot unavailable: %v", err)
		return nil
	}
	logger.Printf("account equity %.2f USDT", snapshot.Equity)
	return &snapshot.Equity
}

func splitSymbols(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
