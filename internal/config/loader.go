package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load decodes the TOML file at path on top of Defaults, loads a .env file
// when present, and applies POLYARB_* overrides. An empty path skips the
// file. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// polymarket
	setStr(&cfg.Polymarket.ClobHost, "POLYARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYARB_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYARB_POLYMARKET_WS_HOST")
	setFloat64(&cfg.Polymarket.ClobRatePerSec, "POLYARB_POLYMARKET_CLOB_RATE_PER_SEC")
	setFloat64(&cfg.Polymarket.GammaRatePerSec, "POLYARB_POLYMARKET_GAMMA_RATE_PER_SEC")

	// storage
	setStr(&cfg.Storage.Backend, "POLYARB_STORAGE_BACKEND")
	setStr(&cfg.Storage.SQLitePath, "POLYARB_STORAGE_SQLITE_PATH")

	// postgres
	setStr(&cfg.Postgres.DSN, "POLYARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYARB_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "POLYARB_POSTGRES_RUN_MIGRATIONS")

	// redis
	setStr(&cfg.Redis.Addr, "POLYARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYARB_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "POLYARB_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.BookTTL, "POLYARB_REDIS_BOOK_TTL")
	setDuration(&cfg.Redis.OpportunityTTL, "POLYARB_REDIS_OPPORTUNITY_TTL")

	// s3
	setStr(&cfg.S3.Endpoint, "POLYARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYARB_S3_FORCE_PATH_STYLE")

	// kafka
	setStringSlice(&cfg.Kafka.Brokers, "POLYARB_KAFKA_BROKERS")
	setStr(&cfg.Kafka.OpportunityTopic, "POLYARB_KAFKA_OPPORTUNITY_TOPIC")
	setStr(&cfg.Kafka.ExecutionTopic, "POLYARB_KAFKA_EXECUTION_TOPIC")

	// llm
	setStr(&cfg.LLM.APIKey, "POLYARB_LLM_API_KEY")
	setStr(&cfg.LLM.BaseURL, "POLYARB_LLM_BASE_URL")
	setStr(&cfg.LLM.Model, "POLYARB_LLM_MODEL")
	setDuration(&cfg.LLM.Timeout, "POLYARB_LLM_TIMEOUT")

	// pricing
	setDuration(&cfg.Pricing.CacheTTL, "POLYARB_PRICING_CACHE_TTL")
	setStr(&cfg.Pricing.UserID, "POLYARB_PRICING_USER_ID")

	// scanner
	setFloat64(&cfg.Scanner.MinProfit, "POLYARB_SCANNER_MIN_PROFIT")
	setFloat64(&cfg.Scanner.MaxTotalPrice, "POLYARB_SCANNER_MAX_TOTAL_PRICE")
	setStr(&cfg.Scanner.PriceType, "POLYARB_SCANNER_PRICE_TYPE")
	setFloat64(&cfg.Scanner.SpreadMultiplier, "POLYARB_SCANNER_SPREAD_MULTIPLIER")
	setStringSlice(&cfg.Scanner.Enabled, "POLYARB_SCANNER_ENABLED")
	setDuration(&cfg.Scanner.Interval, "POLYARB_SCANNER_INTERVAL")
	setInt(&cfg.Scanner.MarketLimit, "POLYARB_SCANNER_MARKET_LIMIT")
	setStr(&cfg.Scanner.StrategiesFile, "POLYARB_SCANNER_STRATEGIES_FILE")

	// executor
	setBool(&cfg.Executor.Enabled, "POLYARB_EXECUTOR_ENABLED")
	setBool(&cfg.Executor.Aggressive, "POLYARB_EXECUTOR_AGGRESSIVE")
	setFloat64(&cfg.Executor.DefaultSize, "POLYARB_EXECUTOR_DEFAULT_SIZE")

	// notify
	setBool(&cfg.Notify.Console, "POLYARB_NOTIFY_CONSOLE")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramToken, "POLYARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "POLYARB_NOTIFY_EVENTS")

	// server
	setStr(&cfg.Server.Addr, "POLYARB_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "POLYARB_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYARB_SERVER_CORS_ORIGINS")
	setFloat64(&cfg.Server.RateLimit, "POLYARB_SERVER_RATE_LIMIT")

	setStr(&cfg.Mode, "POLYARB_MODE")
	setStr(&cfg.LogLevel, "POLYARB_LOG_LEVEL")
}

// The set* helpers only touch dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
