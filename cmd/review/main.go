// Package main runs one review pass: sync the ledger, evaluate the
// discipline rules, store the report and optionally deliver it to Discord.
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
	"trading-coach/internal/notify"
	"trading-coach/internal/reporting"
	"trading-coach/internal/rules"
	"trading-coach/internal/scheduler"
	"trading-coach/internal/storage"
	chstore "trading-coach/internal/storage/clickhouse"
	"trading-coach/internal/storage/memory"
	"trading-coach/internal/storage/migrations"
	pgstore "trading-coach/internal/storage/postgres"
	"trading-coach/internal/syncer"
)

// reviewStores is the full storage surface a review pass needs.
type reviewStores struct {
	fills      storage.FillStore
	cursors    storage.CursorStore
	orderSides storage.OrderSideStore
	lifecycles storage.LifecycleStore
	events     storage.EventStore
	reports    storage.ReportStore
	runState   storage.RunStateStore
	snapshots  storage.ScoreSnapshotStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	kind := flag.String("kind", reporting.KindDaily, "Review period kind: daily, weekly or monthly")
	symbols := flag.String("symbols", strings.Join(cfg.Symbols, ","), "Comma-separated symbols")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string (optional, score history)")
	useMemory := flag.Bool("use-memory", cfg.UseMemory, "Use in-memory storage instead of PostgreSQL")
	timezone := flag.String("tz", cfg.Timezone, "Review timezone, e.g. America/New_York")
	webhook := flag.String("discord-webhook", cfg.DiscordWebhookURL, "Discord webhook URL (empty = no delivery)")
	resolver := flag.String("resolver", cfg.ResolverMode, "Direction resolution: rest or heuristic")
	flag.Parse()

	logger := log.New(os.Stdout, "[review] ", log.LstdFlags)

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
	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		logger.Fatalf("load timezone %q: %v", *timezone, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("create stores: %v", err)
	}
	defer cleanup()

	runner, err := buildRunner(ctx, cfg, stores, symbolList, *resolver, loc, *webhook, logger)
	if err != nil {
		logger.Fatal(err)
	}

	report, err := runner.RunReview(ctx, *kind)
	if err != nil {
		logger.Fatalf("%s review: %v", *kind, err)
	}
	logger.Printf("%s: score %d/100", report.ID, report.Score)
	fmt.Println(report.Body)
}

func buildRunner(ctx context.Context, cfg *config.Config, stores *reviewStores, symbols []string, resolverMode string, loc *time.Location, webhook string, logger *log.Logger) (*scheduler.Runner, error) {
	client := newExchangeClient(cfg)

	agg, err := lifecycle.New(lifecycle.Options{
		Fills:      stores.fills,
		Lifecycles: stores.lifecycles,
		Logger:     logger,
		Equity:     fetchEquity(ctx, client, logger),
	})
	if err != nil {
		return nil, fmt.Errorf("create aggregator: %w", err)
	}

	sync, err := syncer.New(syncer.Options{
		Fetcher:           syncer.NewBitgetFetcher(client),
		Resolver:          newResolver(resolverMode, client, stores.orderSides, logger),
		Fills:             stores.fills,
		Cursors:           stores.cursors,
		Lifecycles:        stores.lifecycles,
		Folder:            agg,
		Logger:            logger,
		Lookback:          cfg.Lookback,
		WindowWidth:       cfg.WindowWidth,
		PageLimit:         cfg.PageLimit,
		MaxPagesPerWindow: cfg.MaxPagesPerWindow,
		Workers:           cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("create synchronizer: %w", err)
	}

	generator, err := reporting.New(reporting.Options{
		Lifecycles: stores.lifecycles,
		Events:     stores.events,
		Reports:    stores.reports,
		Snapshots:  stores.snapshots,
		Logger:     logger,
		Location:   loc,
	})
	if err != nil {
		return nil, fmt.Errorf("create report generator: %w", err)
	}

	var notifier scheduler.Notifier
	if webhook != "" {
		discord, err := notify.NewDiscordWebhook(webhook)
		if err != nil {
			return nil, fmt.Errorf("create discord webhook: %w", err)
		}
		notifier = discord
	}

	return scheduler.New(scheduler.Options{
		Sync:       sync,
		Symbols:    symbols,
		Lifecycles: stores.lifecycles,
		Events:     stores.events,
		Evaluator:  rules.New(rules.DefaultCatalog(), logger),
		Generator:  generator,
		Notifier:   notifier,
		RunState:   stores.runState,
		Logger:     logger,
	})
}

func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*reviewStores, func(), error) {
	if useMemory {
		stores := &reviewStores{
			fills:      memory.NewFillStore(),
			cursors:    memory.NewCursorStore(),
			orderSides: memory.NewOrderSideStore(),
			lifecycles: memory.NewLifecycleStore(),
			events:     memory.NewEventStore(),
			reports:    memory.NewReportStore(),
			runState:   memory.NewRunStateStore(),
			snapshots:  memory.NewScoreSnapshotStore(),
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

	stores := &reviewStores{
		fills:      pgstore.NewFillStore(pool),
		cursors:    pgstore.NewCursorStore(pool),
		orderSides: pgstore.NewOrderSideStore(pool),
		lifecycles: pgstore.NewLifecycleStore(pool),
		events:     pgstore.NewEventStore(pool),
		reports:    pgstore.NewReportStore(pool),
		runState:   pgstore.NewRunStateStore(pool),
	}
	cleanup := pool.Close

	// Score history is optional analytics; a review runs fine without it.
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		stores.snapshots = chstore.NewScoreSnapshotStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}

	return stores, cleanup, nil
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

func fetchEquity(ctx context.Context, client *bitget.Client, logger *log.Logger) *float64 {
	snapshot, err := client.GetAccountSnapshot(ctx)
	if err != nil {
		logger.Printf("WARN: account snapshot unavailable: %v", err)
		return nil
	}
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
