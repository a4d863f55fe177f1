// Package config defines the polyarb configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Config is the root configuration. Fields are populated from a TOML file and
// then overridden by POLYARB_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Storage    StorageConfig    `toml:"storage"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Kafka      KafkaConfig      `toml:"kafka"`
	LLM        LLMConfig        `toml:"llm"`
	Pricing    PricingConfig    `toml:"pricing"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Risk       RiskConfig       `toml:"risk"`
	Executor   ExecutorConfig   `toml:"executor"`
	Notify     NotifyConfig     `toml:"notify"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds the public API endpoints and client-side limits.
type PolymarketConfig struct {
	ClobHost        string  `toml:"clob_host"`
	GammaHost       string  `toml:"gamma_host"`
	WsHost          string  `toml:"ws_host"`
	ClobRatePerSec  float64 `toml:"clob_rate_per_sec"`
	ClobBurst       int     `toml:"clob_burst"`
	GammaRatePerSec float64 `toml:"gamma_rate_per_sec"`
	GammaBurst      int     `toml:"gamma_burst"`
	BookDepth       int     `toml:"book_depth"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "postgres", "sqlite" or "none".
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
}

// PostgresConfig holds connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// book store and opportunity cache.
type RedisConfig struct {
	Addr           string   `toml:"addr"`
	Password       string   `toml:"password"`
	DB             int      `toml:"db"`
	PoolSize       int      `toml:"pool_size"`
	MaxRetries     int      `toml:"max_retries"`
	TLSEnabled     bool     `toml:"tls_enabled"`
	KeyPrefix      string   `toml:"key_prefix"`
	BookTTL        duration `toml:"book_ttl"`
	OpportunityTTL duration `toml:"opportunity_ttl"`
	// BookMaxAge is how old a cached book may be before the CLOB is asked.
	BookMaxAge duration `toml:"book_max_age"`
}

// S3Config holds archive bucket parameters. An empty Bucket disables
// archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// HistoryAfterDays archives stored opportunities older than this at
	// startup; 0 disables it.
	HistoryAfterDays int `toml:"history_after_days"`
}

// KafkaConfig holds publisher settings. No brokers disables publishing.
type KafkaConfig struct {
	Brokers          []string `toml:"brokers"`
	OpportunityTopic string   `toml:"opportunity_topic"`
	ExecutionTopic   string   `toml:"execution_topic"`
}

// LLMConfig configures the rule-risk analyzer and dependency detector. No
// API key keeps the keyword heuristics.
type LLMConfig struct {
	APIKey    string   `toml:"api_key"`
	BaseURL   string   `toml:"base_url"`
	Model     string   `toml:"model"`
	Timeout   duration `toml:"timeout"`
	MaxTokens int      `toml:"max_tokens"`
	// MaxPairs bounds dependency detector calls per pass; 0 skips detection.
	MaxPairs int `toml:"max_pairs"`
}

// PricingConfig configures the price accessor.
type PricingConfig struct {
	CacheTTL duration `toml:"cache_ttl"`
	// UserID selects whose fills back ACTUAL prices.
	UserID string `toml:"user_id"`
}

// ScannerConfig holds scanner thresholds and scheduling.
type ScannerConfig struct {
	MinProfit        float64  `toml:"min_profit"`
	MaxTotalPrice    float64  `toml:"max_total_price"`
	PriceType        string   `toml:"price_type"`
	SpreadMultiplier float64  `toml:"spread_multiplier"`
	OtherKeywords    []string `toml:"other_keywords"`
	Enabled          []string `toml:"enabled"`
	Interval         duration `toml:"interval"`
	MarketLimit      int      `toml:"market_limit"`
	StrategiesFile   string   `toml:"strategies_file"`
	// MaxRuleRisk drops markets above this category before scanning; empty
	// keeps every market.
	MaxRuleRisk string `toml:"max_rule_risk"`
}

// RiskConfig mirrors risk.Limits.
type RiskConfig struct {
	MaxTotalNotional       float64 `toml:"max_total_notional"`
	MaxPerStrategyNotional float64 `toml:"max_per_strategy_notional"`
	MaxPerMarketNotional   float64 `toml:"max_per_market_notional"`
	MaxPerEntityNotional   float64 `toml:"max_per_entity_notional"`
	MaxPerTopicNotional    float64 `toml:"max_per_topic_notional"`
	MaxPositions           int     `toml:"max_positions"`
	MaxPositionsPerMarket  int     `toml:"max_positions_per_market"`
	MinProfitPct           float64 `toml:"min_profit_pct"`
	MaxRuleRiskExposure    float64 `toml:"max_rule_risk_exposure"`
	MaxSlippageBps         float64 `toml:"max_slippage_bps"`
	MinLiquidityScore      float64 `toml:"min_liquidity_score"`
}

// ExecutorConfig controls basket execution. Execution is simulated.
type ExecutorConfig struct {
	Enabled          bool     `toml:"enabled"`
	Aggressive       bool     `toml:"aggressive"`
	MaxSlippageBps   float64  `toml:"max_slippage_bps"`
	MinFillRate      float64  `toml:"min_fill_rate"`
	ExecutionTimeout duration `toml:"execution_timeout"`
	DefaultSize      float64  `toml:"default_size"`
	DedupTTL         duration `toml:"dedup_ttl"`
}

// NotifyConfig holds notification channels.
type NotifyConfig struct {
	Console           bool     `toml:"console"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	Events            []string `toml:"events"`
}

// ServerConfig configures the read-only status API served in run mode. An
// empty Addr disables it.
type ServerConfig struct {
	Addr        string   `toml:"addr"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   float64  `toml:"rate_limit"`
	RateBurst   int      `toml:"rate_burst"`
	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// duration wraps time.Duration for TOML strings such as "60s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the stock configuration.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:        "https://clob.polymarket.com",
			GammaHost:       "https://gamma-api.polymarket.com",
			WsHost:          "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ClobRatePerSec:  10,
			ClobBurst:       20,
			GammaRatePerSec: 4,
			GammaBurst:      4,
			BookDepth:       10,
		},
		Storage: StorageConfig{
			Backend:    "sqlite",
			SQLitePath: "polyarb.db",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "polyarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize:       20,
			MaxRetries:     3,
			KeyPrefix:      "polyarb",
			BookTTL:        duration{5 * time.Minute},
			OpportunityTTL: duration{5 * time.Minute},
			BookMaxAge:     duration{10 * time.Second},
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
		},
		Kafka: KafkaConfig{
			OpportunityTopic: "polyarb.opportunities",
			ExecutionTopic:   "polyarb.executions",
		},
		LLM: LLMConfig{
			Model:     "gpt-4o-mini",
			Timeout:   duration{30 * time.Second},
			MaxTokens: 600,
			MaxPairs:  50,
		},
		Pricing: PricingConfig{
			CacheTTL: duration{5 * time.Second},
		},
		Scanner: ScannerConfig{
			MinProfit:        0.5,
			MaxTotalPrice:    0.98,
			PriceType:        string(domain.PriceAsk),
			SpreadMultiplier: 1.0,
			OtherKeywords:    []string{"other", "none of the above", "field", "someone else"},
			Enabled:          []string{"single_condition", "negrisk_rebalancing", "single_event_multi_market", "template_based"},
			Interval:         duration{60 * time.Second},
			MarketLimit:      500,
		},
		Risk: RiskConfig{
			MaxTotalNotional:       10000,
			MaxPerStrategyNotional: 2000,
			MaxPerMarketNotional:   1000,
			MaxPerEntityNotional:   500,
			MaxPerTopicNotional:    3000,
			MaxPositions:           50,
			MaxPositionsPerMarket:  5,
			MinProfitPct:           0.5,
			MaxRuleRiskExposure:    2000,
			MaxSlippageBps:         50,
			MinLiquidityScore:      0.3,
		},
		Executor: ExecutorConfig{
			Enabled:          false,
			MaxSlippageBps:   50,
			MinFillRate:      0.8,
			ExecutionTimeout: duration{60 * time.Second},
			DefaultSize:      100,
			DedupTTL:         duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Console: true,
			Events:  []string{"opportunity", "execution", "error"},
		},
		Server: ServerConfig{
			RateLimit:       20,
			RateBurst:       40,
			ShutdownTimeout: duration{10 * time.Second},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"scan": true,
	"run":  true,
	"feed": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"none":     true,
}

var validRuleRisk = map[string]bool{
	"":         true,
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, run, feed)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if strings.EqualFold(c.Mode, "feed") && c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty in feed mode")
	}

	switch b := strings.ToLower(c.Storage.Backend); {
	case !validBackends[b]:
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: postgres, sqlite, none)", c.Storage.Backend))
	case b == "sqlite" && c.Storage.SQLitePath == "":
		errs = append(errs, "storage: sqlite_path must not be empty for the sqlite backend")
	case b == "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if strings.EqualFold(c.Mode, "feed") && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr is required in feed mode")
	}
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when bucket is set")
	}

	if _, err := domain.ParsePriceType(c.Scanner.PriceType); err != nil {
		errs = append(errs, fmt.Sprintf("scanner: price_type %q is not one of ASK, BID, MID, LIVE, ACTUAL", c.Scanner.PriceType))
	}
	if c.Scanner.MaxTotalPrice <= 0 {
		errs = append(errs, "scanner: max_total_price must be > 0")
	}
	if c.Scanner.SpreadMultiplier < 0 {
		errs = append(errs, "scanner: spread_multiplier must be >= 0")
	}
	if strings.EqualFold(c.Mode, "run") && c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be > 0 in run mode")
	}
	if len(c.Scanner.Enabled) == 0 {
		errs = append(errs, "scanner: enabled must list at least one scanner")
	}
	if !validRuleRisk[strings.ToLower(c.Scanner.MaxRuleRisk)] {
		errs = append(errs, fmt.Sprintf("scanner: unknown max_rule_risk %q", c.Scanner.MaxRuleRisk))
	}
	if strings.EqualFold(c.Scanner.PriceType, string(domain.PriceActual)) && c.Pricing.UserID == "" {
		errs = append(errs, "pricing: user_id is required for ACTUAL prices")
	}

	if c.Risk.MaxTotalNotional <= 0 {
		errs = append(errs, "risk: max_total_notional must be > 0")
	}
	if c.Risk.MaxPositions < 1 {
		errs = append(errs, "risk: max_positions must be >= 1")
	}

	if c.Executor.Enabled {
		if c.Executor.MinFillRate <= 0 || c.Executor.MinFillRate > 1 {
			errs = append(errs, fmt.Sprintf("executor: min_fill_rate must be in (0, 1], got %g", c.Executor.MinFillRate))
		}
		if c.Executor.DefaultSize <= 0 {
			errs = append(errs, "executor: default_size must be > 0 when enabled")
		}
		if c.Executor.ExecutionTimeout.Duration <= 0 {
			errs = append(errs, "executor: execution_timeout must be > 0 when enabled")
		}
	}

	if c.Server.Addr != "" && c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
