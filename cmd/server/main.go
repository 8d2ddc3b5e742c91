// Package main runs the unified trading-coach service:
// - scheduled reviews (daily / weekly on Sunday / monthly on last day)
// - an operational HTTP surface for manual sync, reviews, reset and chat
// - Prometheus metrics
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trading-coach/internal/bitget"
	"trading-coach/internal/config"
	"trading-coach/internal/lifecycle"
	"trading-coach/internal/llm"
	"trading-coach/internal/notify"
	"trading-coach/internal/observability"
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

// serverStores is the full storage surface of the service.
type serverStores struct {
	fills      storage.FillStore
	cursors    storage.CursorStore
	orderSides storage.OrderSideStore
	lifecycles storage.LifecycleStore
	events     storage.EventStore
	reports    storage.ReportStore
	runState   storage.RunStateStore
	snapshots  storage.ScoreSnapshotStore
}

// server wires the runner and its collaborators behind the HTTP surface.
type server struct {
	runner  *scheduler.Runner
	reports storage.ReportStore
	chat    *llm.Client
	logger  *log.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	listenAddr := flag.String("listen", cfg.ListenAddr, "HTTP listen address")
	symbols := flag.String("symbols", strings.Join(cfg.Symbols, ","), "Comma-separated symbols")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string (optional, score history)")
	useMemory := flag.Bool("use-memory", cfg.UseMemory, "Use in-memory storage instead of PostgreSQL")
	timezone := flag.String("tz", cfg.Timezone, "Review timezone, e.g. America/New_York")
	dailyAt := flag.String("daily-at", cfg.DailyAt, "Daily review trigger HH:MM (empty = default)")
	weeklyAt := flag.String("weekly-at", cfg.WeeklyAt, "Weekly review trigger HH:MM, fires on Sunday (empty = default)")
	monthlyAt := flag.String("monthly-at", cfg.MonthlyAt, "Monthly review trigger HH:MM, fires on the last day (empty = default)")
	webhook := flag.String("discord-webhook", cfg.DiscordWebhookURL, "Discord webhook URL (empty = no delivery)")
	resolver := flag.String("resolver", cfg.ResolverMode, "Direction resolution: rest or heuristic")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags)

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

	var chat *llm.Client
	if cfg.LLMAPIKey != "" {
		var opts []llm.Option
		if cfg.LLMBaseURL != "" {
			opts = append(opts, llm.WithBaseURL(cfg.LLMBaseURL))
		}
		if cfg.LLMModel != "" {
			opts = append(opts, llm.WithModel(cfg.LLMModel))
		}
		if chat, err = llm.NewClient(cfg.LLMAPIKey, opts...); err != nil {
			logger.Fatalf("create llm client: %v", err)
		}
	}

	sched, err := scheduler.NewScheduler(scheduler.SchedulerOptions{
		Runner:    runner,
		Logger:    logger,
		DailyAt:   *dailyAt,
		WeeklyAt:  *weeklyAt,
		MonthlyAt: *monthlyAt,
		Location:  loc,
	})
	if err != nil {
		logger.Fatalf("create scheduler: %v", err)
	}

	srv := &server{
		runner:  runner,
		reports: stores.reports,
		chat:    chat,
		logger:  logger,
	}

	httpSrv := &http.Server{Addr: *listenAddr, Handler: srv.routes()}
	go func() {
		logger.Printf("listening on %s", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("ERROR: http server: %v", err)
			cancel()
		}
	}()

	err = sched.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		logger.Printf("WARN: http shutdown: %v", serr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("scheduler: %v", err)
	}
	logger.Println("shutdown complete")
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("POST /reviews/{kind}", s.handleReview)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /reports/{id}", s.handleReport)
	return mux
}

func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.runner.RunSync(r.Context(), false)
	if err != nil {
		s.writeRunError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fills_ingested":     report.FillsIngested,
		"duplicates_skipped": report.DuplicatesSkipped,
		"pages_fetched":      report.PagesFetched,
		"lifecycles_found":   report.LifecyclesFound,
		"incomplete_windows": report.IncompleteWindows,
		"failed_symbols":     report.FailedSymbols,
	})
}

// handleReset destructively clears cursor, ledger and lifecycle state for
// every configured symbol, then re-syncs from scratch.
func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.logger.Println("RESET requested, clearing sync state")
	report, err := s.runner.RunSync(r.Context(), true)
	if err != nil {
		s.writeRunError(w, "reset", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reset":            true,
		"fills_ingested":   report.FillsIngested,
		"lifecycles_found": report.LifecyclesFound,
		"failed_symbols":   report.FailedSymbols,
	})
}

func (s *server) handleReview(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	switch kind {
	case reporting.KindDaily, reporting.KindWeekly, reporting.KindMonthly:
	default:
		http.Error(w, "unknown review kind "+kind, http.StatusNotFound)
		return
	}

	report, err := s.runner.RunReview(r.Context(), kind)
	if err != nil {
		s.writeRunError(w, kind+" review", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      report.ID,
		"score":   report.Score,
		"summary": report.Summary,
	})
}

func (s *server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.GetByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "no such report", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(report.Body))
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		http.Error(w, "chat is not configured", http.StatusServiceUnavailable)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		http.Error(w, "body must be {\"message\": \"...\"}", http.StatusBadRequest)
		return
	}

	reply, err := s.chat.Chat(r.Context(), s.coachPrompt(r.Context()), req.Message)
	if err != nil {
		s.logger.Printf("ERROR: chat: %v", err)
		http.Error(w, "chat backend failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// coachPrompt grounds the chat in the most recent daily review when one
// exists.
func (s *server) coachPrompt(ctx context.Context) string {
	prompt := "You are a trading discipline coach. You review a trader's own " +
		"executed trades and help them follow their rules: position sizing, " +
		"leverage limits, avoiding revenge trading and late-night entries. " +
		"Be direct and specific. Never give buy or sell recommendations."

	reports, err := s.reports.List(ctx, reporting.KindDaily, 1)
	if err != nil || len(reports) == 0 {
		return prompt
	}
	return prompt + "\n\nLatest daily review:\n\n" + reports[0].Body
}

func (s *server) writeRunError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, scheduler.ErrRunInFlight) {
		http.Error(w, what+" already in progress", http.StatusConflict)
		return
	}
	s.logger.Printf("ERROR: %s: %v", what, err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func buildRunner(ctx context.Context, cfg *config.Config, stores *serverStores, symbols []string, resolverMode string, loc *time.Location, webhook string, logger *log.Logger) (*scheduler.Runner, error) {
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

func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*serverStores, func(), error) {
	if useMemory {
		stores := &serverStores{
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

	stores := &serverStores{
		fills:      pgstore.NewFillStore(pool),
		cursors:    pgstore.NewCursorStore(pool),
		orderSides: pgstore.NewOrderSideStore(pool),
		lifecycles: pgstore.NewLifecycleStore(pool),
		events:     pgstore.NewEventStore(pool),
		reports:    pgstore.NewReportStore(pool),
		runState:   pgstore.NewRunStateStore(pool),
	}
	cleanup := pool.Close

	// Score history is optional analytics; the service runs fine without it.
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

// fetchEquity reads the account equity once at startup. Failures leave
// equity unknown, which keeps equity-relative rules silent rather than
// wrong. Lifecycles keep the equity they were first folded with.
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
