package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/analysis"
	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	s3blob "github.com/alanyoungcy/polyarb/internal/blob/s3"
	"github.com/alanyoungcy/polyarb/internal/cache/redis"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/executor"
	"github.com/alanyoungcy/polyarb/internal/notify"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
	"github.com/alanyoungcy/polyarb/internal/pricing"
	"github.com/alanyoungcy/polyarb/internal/queue"
	"github.com/alanyoungcy/polyarb/internal/risk"
	"github.com/alanyoungcy/polyarb/internal/scanner"
	"github.com/alanyoungcy/polyarb/internal/service"
	"github.com/alanyoungcy/polyarb/internal/store/postgres"
	"github.com/alanyoungcy/polyarb/internal/store/sqlite"
	"github.com/alanyoungcy/polyarb/internal/strategy"
)

// Dependencies bundles everything the modes need. Optional collaborators are
// nil when their config section is empty.
type Dependencies struct {
	// Polymarket
	Clob  *polymarket.ClobClient
	Gamma *polymarket.GammaClient
	WS    *polymarket.WSClient

	// Stores
	Fills         domain.FillStore
	Opportunities domain.OpportunityStore
	Executions    domain.ExecutionStore

	// Caches
	BookStore        *redis.BookStore
	OpportunityCache *redis.OpportunityCache

	// Blob storage
	Archiver *s3blob.Archiver

	Publisher *queue.Publisher

	Prices     *pricing.Accessor
	Markets    *service.MarketService
	Strategies *strategy.Registry
	Scanners   []scanner.Scanner
	Tracker    *service.Tracker

	Rules        domain.RuleRiskAnalyzer
	Dependencies domain.DependencyDetector

	Risk     *risk.Manager
	Executor *executor.BasketExecutor
	Dedup    *executor.Dedup

	Notifier *notify.Notifier
	Console  *notify.Console
}

// Engine assembles the scan engine from deps. Nil interface fields are left
// unset so the engine sees them as absent.
func (d *Dependencies) Engine(cfg *config.Config, logger *slog.Logger) *arbitrage.Engine {
	ed := arbitrage.Deps{
		Markets:      d.Markets,
		Strategies:   d.Strategies,
		Scanners:     d.Scanners,
		Tracker:      d.Tracker,
		Rules:        d.Rules,
		Dependencies: d.Dependencies,

		Opportunities: d.Opportunities,
		Executions:    d.Executions,
		Fills:         d.Fills,
		Notifier:      d.Notifier,
		Risk:          d.Risk,
		Executor:      d.Executor,
		Dedup:         d.Dedup,
	}
	if d.OpportunityCache != nil {
		ed.Cache = d.OpportunityCache
	}
	if d.Publisher != nil {
		ed.Publisher = d.Publisher
	}
	if d.Archiver != nil {
		ed.Archiver = d.Archiver
	}
	if d.Gamma != nil {
		ed.Settlement = d.Gamma
	}
	if d.Prices != nil {
		ed.Prices = d.Prices
	}

	return arbitrage.NewEngine(arbitrage.Config{
		MarketLimit:        cfg.Scanner.MarketLimit,
		MaxRuleRisk:        domain.RuleRiskCategory(strings.ToLower(cfg.Scanner.MaxRuleRisk)),
		MaxDependencyPairs: cfg.LLM.MaxPairs,
		ExecutionEnabled:   cfg.Executor.Enabled,
		DefaultSize:        cfg.Executor.DefaultSize,
		UserID:             cfg.Pricing.UserID,
	}, ed, logger)
}

// Wire constructs all concrete implementations from cfg and returns them with
// a cleanup function that releases connections in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Tracker: service.NewTracker()}

	// --- Polymarket ---
	pm := cfg.Polymarket
	deps.Clob = polymarket.NewClobClient(pm.ClobHost, pm.ClobRatePerSec, pm.ClobBurst)
	deps.Gamma = polymarket.NewGammaClient(pm.GammaHost, pm.GammaRatePerSec, pm.GammaBurst, logger)
	if pm.WsHost != "" {
		deps.WS = polymarket.NewWSClient(pm.WsHost, logger)
	}
	deps.Markets = service.NewMarketService(deps.Gamma, logger)

	// --- Persistence ---
	switch strings.ToLower(cfg.Storage.Backend) {
	case "postgres":
		pg := cfg.Postgres
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      pg.DSN,
			Host:     pg.Host,
			Port:     pg.Port,
			Database: pg.Database,
			User:     pg.User,
			Password: pg.Password,
			SSLMode:  pg.SSLMode,
			MaxConns: pg.PoolMaxConns,
			MinConns: pg.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if pg.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		stores := pgClient.Stores()
		deps.Fills = stores.Fills
		deps.Opportunities = stores.Opportunities
		deps.Executions = stores.Executions

	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.Fills = db
		deps.Opportunities = db
		deps.Executions = db
	}

	// --- Redis ---
	var books domain.BookSource = deps.Clob
	if cfg.Redis.Addr != "" {
		rc := cfg.Redis
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       rc.Addr,
			Password:   rc.Password,
			DB:         rc.DB,
			PoolSize:   rc.PoolSize,
			MaxRetries: rc.MaxRetries,
			TLSEnabled: rc.TLSEnabled,
			KeyPrefix:  rc.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.BookStore = redis.NewBookStore(redisClient, rc.BookTTL.Duration)
		deps.OpportunityCache = redis.NewOpportunityCache(redisClient, rc.OpportunityTTL.Duration)
		books = pricing.NewLayeredSource(deps.BookStore, deps.Clob, deps.BookStore, rc.BookMaxAge.Duration, logger)
	}

	// --- Pricing ---
	priceOpts := []pricing.Option{pricing.WithCacheTTL(cfg.Pricing.CacheTTL.Duration)}
	if deps.Fills != nil {
		priceOpts = append(priceOpts, pricing.WithFillStore(deps.Fills))
	}
	deps.Prices = pricing.NewAccessor(books, logger, priceOpts...)

	// --- S3 archive ---
	if cfg.S3.Bucket != "" {
		sc := cfg.S3
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       sc.Endpoint,
			Region:         sc.Region,
			Bucket:         sc.Bucket,
			AccessKey:      sc.AccessKey,
			SecretKey:      sc.SecretKey,
			UseSSL:         sc.UseSSL,
			ForcePathStyle: sc.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable, archiving may fail",
				slog.String("bucket", sc.Bucket),
				slog.String("error", err.Error()),
			)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), logger)
	}

	// --- Kafka ---
	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := queue.NewPublisher(queue.Config{
			Brokers:          cfg.Kafka.Brokers,
			OpportunityTopic: cfg.Kafka.OpportunityTopic,
			ExecutionTopic:   cfg.Kafka.ExecutionTopic,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: kafka: %w", err))
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Publisher = pub
	}

	// --- Rule risk and dependencies ---
	deps.Rules = analysis.HeuristicRuleAnalyzer{}
	deps.Dependencies = analysis.HeuristicDependencyDetector{}
	if cfg.LLM.APIKey != "" {
		llm, err := analysis.NewLLMClient(analysis.LLMConfig{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			Timeout:   cfg.LLM.Timeout.Duration,
			MaxTokens: cfg.LLM.MaxTokens,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: llm: %w", err))
		}
		deps.Rules = analysis.NewLLMRuleAnalyzer(llm, logger)
		deps.Dependencies = analysis.NewLLMDependencyDetector(llm, logger)
	}

	// --- Strategies and scanners ---
	deps.Strategies = strategy.NewRegistry()
	if path := cfg.Scanner.StrategiesFile; path != "" {
		n, err := strategy.LoadInto(deps.Strategies, path)
		if err != nil && n == 0 {
			return fail(fmt.Errorf("wire: strategies: %w", err))
		}
		if err != nil {
			logger.WarnContext(ctx, "some strategies skipped", slog.String("error", err.Error()))
		}
		summary := deps.Strategies.Summary()
		logger.InfoContext(ctx, "strategies loaded",
			slog.String("path", path),
			slog.Int("count", summary.TotalCount),
			slog.Int("pure_arbitrage", len(deps.Strategies.PureArbitrage())),
		)
	}

	pt, err := domain.ParsePriceType(cfg.Scanner.PriceType)
	if err != nil {
		return fail(fmt.Errorf("wire: scanner: %w", err))
	}
	scanners := scanner.NewDefaultRegistry(deps.Prices, scanner.Config{
		MinProfitPct:     cfg.Scanner.MinProfit,
		MaxTotalPrice:    cfg.Scanner.MaxTotalPrice,
		PriceType:        pt,
		SpreadMultiplier: cfg.Scanner.SpreadMultiplier,
	}, cfg.Scanner.OtherKeywords, logger)
	deps.Scanners, err = scanners.Select(cfg.Scanner.Enabled)
	if err != nil {
		return fail(fmt.Errorf("wire: scanner: %w", err))
	}

	// --- Risk and execution ---
	rk := cfg.Risk
	deps.Risk = risk.NewManager(risk.Limits{
		MaxTotalNotional:       rk.MaxTotalNotional,
		MaxPerStrategyNotional: rk.MaxPerStrategyNotional,
		MaxPerMarketNotional:   rk.MaxPerMarketNotional,
		MaxPerEntityNotional:   rk.MaxPerEntityNotional,
		MaxPerTopicNotional:    rk.MaxPerTopicNotional,
		MaxPositions:           rk.MaxPositions,
		MaxPositionsPerMarket:  rk.MaxPositionsPerMarket,
		MinProfitPct:           rk.MinProfitPct,
		MaxRuleRiskExposure:    rk.MaxRuleRiskExposure,
		MaxSlippageBps:         rk.MaxSlippageBps,
		MinLiquidityScore:      rk.MinLiquidityScore,
	}, logger)
	deps.Executor = executor.NewBasketExecutor(executor.SimulatedFiller{}, executor.Config{
		Aggressive:     cfg.Executor.Aggressive,
		MaxSlippageBps: cfg.Executor.MaxSlippageBps,
		MinFillRate:    cfg.Executor.MinFillRate,
		LegTimeout:     cfg.Executor.ExecutionTimeout.Duration,
	}, logger)
	deps.Dedup = executor.NewDedup(cfg.Executor.DedupTTL.Duration)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.Console {
		deps.Console = notify.NewConsole()
		senders = append(senders, deps.Console)
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
