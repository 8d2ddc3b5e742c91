// Package config loads service configuration from the environment, with
// optional .env overlays for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the environment leaves a knob unset.
const (
	DefaultSymbols      = "BTCUSDT,ETHUSDT"
	DefaultListenAddr   = ":8080"
	DefaultTimezone     = "UTC"
	DefaultResolverMode = "rest"
	DefaultLLMModel     = "gpt-4o-mini"
)

// Config carries every runtime knob of the service. Binaries expose the
// subset they need as flags, defaulting from here.
type Config struct {
	// Exchange credentials (read-only API key).
	BitgetAPIKey     string
	BitgetSecret     string
	BitgetPassphrase string
	BitgetBaseURL    string

	// Symbols in canonical exchange form, e.g. BTCUSDT.
	Symbols []string

	// Storage.
	PostgresDSN   string
	ClickhouseDSN string
	UseMemory     bool

	// Sync tuning. Zero values fall back to the syncer defaults.
	Lookback          time.Duration
	WindowWidth       time.Duration
	PageLimit         int
	MaxPagesPerWindow int
	Workers           int

	// ResolverMode selects direction resolution: "rest" uses order detail
	// lookups with a persistent cache, "heuristic" infers from trade flags.
	ResolverMode string

	// Review schedule, wall clock in Timezone.
	Timezone  string
	DailyAt   string
	WeeklyAt  string
	MonthlyAt string

	// Delivery and chat.
	DiscordWebhookURL string
	LLMAPIKey         string
	LLMBaseURL        string
	LLMModel          string

	ListenAddr string
}

// Load reads .env.local and .env (in that precedence, never overriding
// real environment variables) and builds a Config from the environment.
func Load() (*Config, error) {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err == nil {
			if err := godotenv.Load(name); err != nil {
				return nil, fmt.Errorf("load %s: %w", name, err)
			}
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		BitgetAPIKey:      os.Getenv("BITGET_API_KEY"),
		BitgetSecret:      os.Getenv("BITGET_API_SECRET"),
		BitgetPassphrase:  os.Getenv("BITGET_PASSPHRASE"),
		BitgetBaseURL:     os.Getenv("BITGET_BASE_URL"),
		Symbols:           splitList(envOr("SYMBOLS", DefaultSymbols)),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN:     os.Getenv("CLICKHOUSE_DSN"),
		ResolverMode:      envOr("DIRECTION_RESOLVER", DefaultResolverMode),
		Timezone:          envOr("REVIEW_TZ", DefaultTimezone),
		DailyAt:           os.Getenv("REVIEW_DAILY_AT"),
		WeeklyAt:          os.Getenv("REVIEW_WEEKLY_AT"),
		MonthlyAt:         os.Getenv("REVIEW_MONTHLY_AT"),
		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		LLMBaseURL:        os.Getenv("LLM_BASE_URL"),
		LLMModel:          envOr("LLM_MODEL", DefaultLLMModel),
		ListenAddr:        envOr("LISTEN_ADDR", DefaultListenAddr),
	}

	var err error
	if cfg.UseMemory, err = envBool("USE_MEMORY"); err != nil {
		return nil, err
	}
	if cfg.Lookback, err = envDuration("SYNC_LOOKBACK"); err != nil {
		return nil, err
	}
	if cfg.WindowWidth, err = envDuration("SYNC_WINDOW"); err != nil {
		return nil, err
	}
	if cfg.PageLimit, err = envInt("SYNC_PAGE_LIMIT"); err != nil {
		return nil, err
	}
	if cfg.MaxPagesPerWindow, err = envInt("SYNC_MAX_PAGES"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = envInt("SYNC_WORKERS"); err != nil {
		return nil, err
	}

	if cfg.ResolverMode != "rest" && cfg.ResolverMode != "heuristic" {
		return nil, fmt.Errorf("config: DIRECTION_RESOLVER must be rest or heuristic, got %q", cfg.ResolverMode)
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("config: SYMBOLS is empty")
	}
	return cfg, nil
}

// ValidateExchange checks the credential triple needed for signed calls.
func (c *Config) ValidateExchange() error {
	if c.BitgetAPIKey == "" || c.BitgetSecret == "" || c.BitgetPassphrase == "" {
		return fmt.Errorf("config: BITGET_API_KEY, BITGET_API_SECRET and BITGET_PASSPHRASE are required")
	}
	return nil
}

// ValidateStorage checks that durable stores are reachable by DSN unless
// in-memory storage was selected.
func (c *Config) ValidateStorage() error {
	if c.UseMemory {
		return nil
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("config: POSTGRES_DSN is required (or set USE_MEMORY=true)")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
