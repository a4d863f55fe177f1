package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	"github.com/alanyoungcy/polyarb/internal/feed"
	"github.com/alanyoungcy/polyarb/internal/server"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
	"github.com/alanyoungcy/polyarb/internal/server/ws"
)

// ScanMode runs one pass and prints the report.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	a.archiveHistory(ctx, deps)

	rep, err := deps.Engine(a.cfg, a.logger).RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("app: scan: %w", err)
	}
	a.printReport(deps, rep)
	return nil
}

// RunMode scans on the configured interval. When a websocket host and Redis
// are both configured the book feed runs alongside, keeping the book store
// warm for the scanners. server.addr starts the status API.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting run mode",
		slog.Duration("interval", a.cfg.Scanner.Interval.Duration),
		slog.Bool("execution", a.cfg.Executor.Enabled),
	)

	g, ctx := errgroup.WithContext(ctx)

	if deps.WS != nil && deps.BookStore != nil {
		g.Go(func() error {
			err := a.runFeed(ctx, deps)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.ErrorContext(ctx, "book feed stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		a.archiveHistory(ctx, deps)
		return nil
	})

	var hub *ws.Hub
	if a.cfg.Server.Addr != "" {
		hub = ws.NewHub(a.cfg.Mode, a.logger)
		a.startServer(ctx, g, deps, hub)
	}

	g.Go(func() error {
		return deps.Engine(a.cfg, a.logger).Run(ctx, a.cfg.Scanner.Interval.Duration, func(rep *arbitrage.Report) {
			a.printReport(deps, rep)
			if hub != nil {
				publishReport(hub, rep)
			}
		})
	})

	return g.Wait()
}

// startServer adds the status API and websocket hub to g. The server shuts
// down gracefully when ctx is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub) {
	var cache handler.OpportunitySnapshots
	if deps.OpportunityCache != nil {
		cache = deps.OpportunityCache
	}
	sc := a.cfg.Server
	srv := server.NewServer(server.Config{
		Addr:        sc.Addr,
		CORSOrigins: sc.CORSOrigins,
		APIKey:      sc.APIKey,
		RateLimit:   sc.RateLimit,
		RateBurst:   sc.RateBurst,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(a.cfg.Mode, time.Now(), a.logger),
		Opportunities: handler.NewOpportunityHandler(deps.Tracker, deps.Opportunities, cache, a.logger),
		Executions:    handler.NewExecutionHandler(deps.Tracker, deps.Executions, a.logger),
		Status:        handler.NewStatusHandler(deps.Tracker, deps.Risk, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

const maxPublishedOpportunities = 50

// passSummary is the websocket payload for a finished pass.
type passSummary struct {
	PassID        string  `json:"pass_id"`
	StartedAt     string  `json:"started_at"`
	DurationMs    int64   `json:"duration_ms"`
	Markets       int     `json:"markets"`
	Strategies    int     `json:"strategies"`
	Opportunities int     `json:"opportunities"`
	Executions    int     `json:"executions"`
	Rejected      int     `json:"rejected"`
	SinkErrors    int     `json:"sink_errors"`
	BestProfitPct float64 `json:"best_profit_pct"`
}

func publishReport(hub *ws.Hub, rep *arbitrage.Report) {
	sum := passSummary{
		PassID:        rep.PassID,
		StartedAt:     rep.StartedAt.Format(time.RFC3339Nano),
		DurationMs:    rep.Duration.Milliseconds(),
		Markets:       rep.Markets,
		Strategies:    rep.Strategies,
		Opportunities: len(rep.Opportunities),
		Executions:    len(rep.Executions),
		Rejected:      rep.Rejected,
		SinkErrors:    rep.SinkErrors,
	}
	if len(rep.Opportunities) > 0 {
		sum.BestProfitPct = rep.Opportunities[0].ProfitPercentage
	}
	hub.Publish(ws.ChannelPasses, sum)

	for _, opp := range rep.Opportunities[:min(len(rep.Opportunities), maxPublishedOpportunities)] {
		hub.Publish(ws.ChannelOpportunities, opp.ToRecord())
	}
	for _, res := range rep.Executions {
		hub.Publish(ws.ChannelExecutions, res)
	}
}

// FeedMode only streams live books into Redis.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting feed mode")
	if deps.WS == nil || deps.BookStore == nil {
		return errors.New("app: feed mode needs polymarket.ws_host and redis.addr")
	}
	return a.runFeed(ctx, deps)
}

func (a *App) runFeed(ctx context.Context, deps *Dependencies) error {
	markets, err := deps.Markets.Snapshot(ctx, a.cfg.Scanner.MarketLimit)
	if err != nil {
		return fmt.Errorf("app: feed: %w", err)
	}
	assetIDs := feed.AssetIDs(markets)
	a.logger.InfoContext(ctx, "book feed starting",
		slog.Int("markets", len(markets)),
		slog.Int("assets", len(assetIDs)),
	)
	return feed.NewBookFeed(deps.WS, deps.Clob, deps.BookStore, a.logger).Run(ctx, assetIDs)
}

// archiveHistory moves stored opportunities older than s3.history_after_days
// into the bucket. Failures are logged.
func (a *App) archiveHistory(ctx context.Context, deps *Dependencies) {
	days := a.cfg.S3.HistoryAfterDays
	if deps.Archiver == nil || deps.Opportunities == nil || days <= 0 {
		return
	}
	before := time.Now().UTC().AddDate(0, 0, -days)
	n, err := deps.Archiver.ArchiveHistory(ctx, deps.Opportunities, before)
	if err != nil {
		a.logger.WarnContext(ctx, "history archive failed", slog.String("error", err.Error()))
		return
	}
	a.logger.InfoContext(ctx, "history archived",
		slog.Int("opportunities", n),
		slog.Time("before", before),
	)
}

func (a *App) printReport(deps *Dependencies, rep *arbitrage.Report) {
	if deps.Console == nil {
		return
	}
	deps.Console.PrintOpportunities(rep.Opportunities)
	if len(rep.Dependencies) > 0 {
		deps.Console.PrintDependencies(rep.Dependencies)
	}
	deps.Console.PrintMetrics(deps.Tracker.Metrics())
	if a.cfg.Executor.Enabled {
		deps.Console.PrintExposure(deps.Risk.ExposureSummary())
	}
}
