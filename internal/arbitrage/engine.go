// Package arbitrage drives scan passes: it snapshots markets, runs the
// scanners, scores rule risk, fans results out to the sinks and, when
// enabled, executes the best baskets under the risk manager.
package arbitrage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/analysis"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/scanner"
	"github.com/alanyoungcy/polyarb/internal/service"
)

// MarketLister returns the markets one pass scans.
type MarketLister interface {
	Snapshot(ctx context.Context, limit int) ([]domain.Market, error)
}

// StrategySource returns the registered logical strategies.
type StrategySource interface {
	All() []*domain.Strategy
}

// PassArchiver stores every pass's opportunities.
type PassArchiver interface {
	ArchivePass(ctx context.Context, passID string, at time.Time, opps []*domain.EnhancedOpportunity) (string, error)
}

// Notifier receives pass and execution summaries.
type Notifier interface {
	OpportunitiesFound(ctx context.Context, opps []*domain.EnhancedOpportunity) error
	ExecutionFinished(ctx context.Context, res domain.ExecutionResult) error
}

// RiskGate sizes and admits baskets, records what was filled and releases
// positions once their market settles.
type RiskGate interface {
	SuggestPositionSize(opp *domain.EnhancedOpportunity, maxSize float64) float64
	CheckOpportunity(opp *domain.EnhancedOpportunity, size float64) (bool, []string)
	AddExecution(opp *domain.EnhancedOpportunity, res domain.ExecutionResult)
	OpenMarkets() []string
	ReleaseMarket(marketID string) int
}

// PriceCache is the scanners' price cache, cleared before every pass.
type PriceCache interface {
	ClearCache()
}

// MarketLookup fetches the current state of one market.
type MarketLookup interface {
	GetMarket(ctx context.Context, id string) (domain.Market, error)
}

// Executor fills a basket.
type Executor interface {
	Execute(ctx context.Context, opp *domain.EnhancedOpportunity, targetSize float64) domain.ExecutionResult
}

// Deduper suppresses repeat executions of one signature.
type Deduper interface {
	IsDuplicate(signature string) bool
	Forget(signature string)
	Cleanup()
}

// Config holds engine settings.
type Config struct {
	MarketLimit int
	// MaxRuleRisk drops markets above this category before scanning.
	MaxRuleRisk domain.RuleRiskCategory
	// MaxDependencyPairs bounds dependency detection; 0 disables it.
	MaxDependencyPairs int

	ExecutionEnabled bool
	// DefaultSize is the size ceiling for opportunities without a MaxSize.
	DefaultSize float64
	// UserID owns the fills recorded for executed legs.
	UserID string
}

// Deps are the engine collaborators. Markets, Scanners and Tracker are
// required; every other field may be nil.
type Deps struct {
	Markets    MarketLister
	Strategies StrategySource
	Scanners   []scanner.Scanner
	Tracker    *service.Tracker
	Prices     PriceCache

	Rules        domain.RuleRiskAnalyzer
	Dependencies domain.DependencyDetector

	Opportunities domain.OpportunityStore
	Executions    domain.ExecutionStore
	Fills         domain.FillStore
	Cache         domain.OpportunityCache
	Publisher     domain.OpportunityPublisher
	Archiver      PassArchiver
	Notifier      Notifier

	Risk     RiskGate
	Executor Executor
	Dedup    Deduper
	// Settlement reports when markets holding positions close.
	Settlement MarketLookup
}

// Report summarises one pass.
type Report struct {
	PassID        string
	StartedAt     time.Time
	Duration      time.Duration
	Markets       int
	Strategies    int
	Results       []scanner.Result
	Opportunities []*domain.EnhancedOpportunity // best first
	Dependencies  []domain.Dependency
	Executions    []domain.ExecutionResult
	Duplicates    int
	Rejected      int
	Released      int
	SinkErrors    int
}

// Engine runs scan passes.
type Engine struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, deps Deps, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "engine")),
		now:    time.Now,
	}
}

// Run executes a pass immediately and then every interval until ctx is
// cancelled. A failed pass is logged and the loop continues. onPass, when
// set, receives every completed report.
func (e *Engine) Run(ctx context.Context, interval time.Duration, onPass func(*Report)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep, err := e.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.ErrorContext(ctx, "scan pass failed", slog.String("error", err.Error()))
		} else if onPass != nil {
			onPass(rep)
		}
		if e.deps.Dedup != nil {
			e.deps.Dedup.Cleanup()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes one pass. Only a failed market snapshot is an error;
// sink failures are logged and counted in Report.SinkErrors.
func (e *Engine) RunOnce(ctx context.Context) (*Report, error) {
	rep := &Report{PassID: uuid.NewString(), StartedAt: e.now().UTC()}
	log := e.logger.With(slog.String("pass_id", rep.PassID))

	if e.deps.Prices != nil {
		e.deps.Prices.ClearCache()
	}
	markets, err := e.deps.Markets.Snapshot(ctx, e.cfg.MarketLimit)
	if err != nil {
		return nil, err
	}

	var assessments map[string]domain.RuleRiskAssessment
	if e.deps.Rules != nil {
		assessments = analysis.AnalyzeBatch(ctx, e.deps.Rules, markets)
		if e.cfg.MaxRuleRisk != "" {
			markets = filterMarkets(markets, assessments, e.cfg.MaxRuleRisk)
		}
	}
	rep.Markets = len(markets)

	in := scanner.Input{Markets: markets}
	if e.deps.Strategies != nil {
		in.Strategies = e.deps.Strategies.All()
	}
	rep.Strategies = len(in.Strategies)

	rep.Results = e.scan(ctx, in)
	rep.Opportunities = scanner.TopByProfit(scanner.Merge(rep.Results...), 0)

	for _, opp := range rep.Opportunities {
		analysis.Annotate(opp, assessments)
		e.deps.Tracker.AddOpportunity(opp)
	}

	if e.deps.Dependencies != nil && e.cfg.MaxDependencyPairs > 0 {
		deps, err := analysis.DetectAll(ctx, e.deps.Dependencies, markets, e.cfg.MaxDependencyPairs)
		if err != nil {
			log.WarnContext(ctx, "dependency detection incomplete", slog.String("error", err.Error()))
		}
		rep.Dependencies = deps
	}

	e.fanOut(ctx, log, rep)

	if e.cfg.ExecutionEnabled && e.deps.Executor != nil && e.deps.Risk != nil {
		e.settle(ctx, log, rep)
		e.executeAll(ctx, log, rep)
	}

	rep.Duration = e.now().UTC().Sub(rep.StartedAt)
	log.InfoContext(ctx, "scan pass complete",
		slog.Int("markets", rep.Markets),
		slog.Int("strategies", rep.Strategies),
		slog.Int("opportunities", len(rep.Opportunities)),
		slog.Int("executions", len(rep.Executions)),
		slog.Int("rejected", rep.Rejected),
		slog.Int("released", rep.Released),
		slog.Int("sink_errors", rep.SinkErrors),
		slog.Duration("duration", rep.Duration),
	)
	return rep, nil
}

// scan runs every scanner concurrently. Results keep scanner order.
func (e *Engine) scan(ctx context.Context, in scanner.Input) []scanner.Result {
	results := make([]scanner.Result, len(e.deps.Scanners))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range e.deps.Scanners {
		g.Go(func() error {
			results[i] = s.Scan(gctx, in)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) fanOut(ctx context.Context, log *slog.Logger, rep *Report) {
	sinkErr := func(sink, oppID string, err error) {
		rep.SinkErrors++
		log.WarnContext(ctx, "sink failed",
			slog.String("sink", sink),
			slog.String("opportunity_id", oppID),
			slog.String("error", err.Error()),
		)
	}

	for _, opp := range rep.Opportunities {
		if e.deps.Opportunities != nil {
			if err := e.deps.Opportunities.InsertOpportunity(ctx, opp); err != nil {
				sinkErr("store", opp.ID, err)
			}
		}
		if e.deps.Cache != nil {
			if err := e.deps.Cache.Put(ctx, opp); err != nil {
				sinkErr("cache", opp.ID, err)
			}
		}
		if e.deps.Publisher != nil {
			if err := e.deps.Publisher.PublishOpportunity(ctx, opp); err != nil {
				sinkErr("publisher", opp.ID, err)
			}
		}
	}
	if e.deps.Archiver != nil {
		if _, err := e.deps.Archiver.ArchivePass(ctx, rep.PassID, rep.StartedAt, rep.Opportunities); err != nil {
			sinkErr("archive", "", err)
		}
	}
	if e.deps.Notifier != nil {
		if err := e.deps.Notifier.OpportunitiesFound(ctx, rep.Opportunities); err != nil {
			sinkErr("notifier", "", err)
		}
	}
}

// settle releases the positions of markets that have closed since they were
// bought. A market that cannot be fetched keeps its positions.
func (e *Engine) settle(ctx context.Context, log *slog.Logger, rep *Report) {
	if e.deps.Settlement == nil {
		return
	}
	for _, id := range e.deps.Risk.OpenMarkets() {
		if ctx.Err() != nil {
			return
		}
		m, err := e.deps.Settlement.GetMarket(ctx, id)
		if err != nil {
			log.WarnContext(ctx, "settlement lookup failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if m.Active {
			continue
		}
		rep.Released += e.deps.Risk.ReleaseMarket(id)
	}
}

// executeAll walks opportunities best first: dedup, size, risk check,
// execute, then record the filled legs and the result.
func (e *Engine) executeAll(ctx context.Context, log *slog.Logger, rep *Report) {
	for _, opp := range rep.Opportunities {
		if ctx.Err() != nil {
			return
		}
		sig := opp.Signature()
		if e.deps.Dedup != nil && e.deps.Dedup.IsDuplicate(sig) {
			rep.Duplicates++
			continue
		}

		ceiling := e.cfg.DefaultSize
		if opp.MaxSize != nil && *opp.MaxSize > 0 {
			ceiling = *opp.MaxSize
		}
		size := e.deps.Risk.SuggestPositionSize(opp, ceiling)
		if size <= 0 {
			e.forget(sig)
			rep.Rejected++
			log.InfoContext(ctx, "no risk headroom", slog.String("opportunity_id", opp.ID))
			continue
		}
		if ok, _ := e.deps.Risk.CheckOpportunity(opp, size); !ok {
			e.forget(sig)
			rep.Rejected++
			continue
		}

		res := e.deps.Executor.Execute(ctx, opp, size)
		e.deps.Risk.AddExecution(opp, res)
		rep.Executions = append(rep.Executions, res)
		e.deps.Tracker.AddExecution(res)
		e.record(ctx, log, rep, res)
	}
}

func (e *Engine) record(ctx context.Context, log *slog.Logger, rep *Report, res domain.ExecutionResult) {
	warn := func(sink string, err error) {
		rep.SinkErrors++
		log.WarnContext(ctx, "sink failed",
			slog.String("sink", sink),
			slog.String("execution_id", res.ID),
			slog.String("error", err.Error()),
		)
	}
	if e.deps.Executions != nil {
		if err := e.deps.Executions.InsertExecution(ctx, res); err != nil {
			warn("execution_store", err)
		}
	}
	if e.deps.Fills != nil {
		for _, le := range res.Legs {
			if le.FilledSize <= 0 {
				continue
			}
			fill := domain.Fill{
				UserID:        e.cfg.UserID,
				TokenID:       le.Leg.TokenID,
				MarketID:      le.Leg.MarketID,
				OpportunityID: res.OpportunityID,
				Side:          domain.OrderSideBuy,
				Price:         le.AvgFillPrice,
				Size:          le.FilledSize,
				ExecutedAt:    le.CompletedAt,
			}
			if err := e.deps.Fills.InsertFill(ctx, fill); err != nil {
				warn("fill_store", err)
			}
		}
	}
	if e.deps.Publisher != nil {
		if err := e.deps.Publisher.PublishExecution(ctx, res); err != nil {
			warn("publisher", err)
		}
	}
	if e.deps.Notifier != nil {
		if err := e.deps.Notifier.ExecutionFinished(ctx, res); err != nil {
			warn("notifier", err)
		}
	}
}

func (e *Engine) forget(sig string) {
	if e.deps.Dedup != nil {
		e.deps.Dedup.Forget(sig)
	}
}

// filterMarkets keeps markets at or below maxCat. Markets without an
// assessment are kept.
func filterMarkets(markets []domain.Market, assessments map[string]domain.RuleRiskAssessment, maxCat domain.RuleRiskCategory) []domain.Market {
	limit := maxCat.Rank()
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if a, ok := assessments[m.ID]; ok && a.Category.Rank() > limit {
			continue
		}
		out = append(out, m)
	}
	return out
}
