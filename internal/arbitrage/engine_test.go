package arbitrage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/analysis"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/domain/domaintest"
	"github.com/alanyoungcy/polyarb/internal/executor"
	"github.com/alanyoungcy/polyarb/internal/risk"
	"github.com/alanyoungcy/polyarb/internal/scanner"
	"github.com/alanyoungcy/polyarb/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMarkets struct {
	markets []domain.Market
	err     error
}

func (f fakeMarkets) Snapshot(context.Context, int) ([]domain.Market, error) {
	return f.markets, f.err
}

type fixedScanner struct {
	name string
	opps []*domain.EnhancedOpportunity
}

func (s fixedScanner) Name() string { return s.name }

func (s fixedScanner) Scan(_ context.Context, in scanner.Input) scanner.Result {
	return scanner.Result{Scanner: s.name, Opportunities: s.opps, Scanned: len(in.Markets)}
}

type failingStore struct{}

func (failingStore) InsertOpportunity(context.Context, *domain.EnhancedOpportunity) error {
	return errors.New("db down")
}

func (failingStore) ListRecentOpportunities(context.Context, domain.ListOpts) ([]domain.OpportunityRecord, error) {
	return nil, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	opps  []string
	execs []string
}

func (p *recordingPublisher) PublishOpportunity(_ context.Context, opp *domain.EnhancedOpportunity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opps = append(p.opps, opp.ID)
	return nil
}

func (p *recordingPublisher) PublishExecution(_ context.Context, res domain.ExecutionResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.execs = append(p.execs, res.OpportunityID)
	return nil
}

type fakeRisk struct {
	reject    map[string]bool
	size      float64
	positions []string
}

func (r *fakeRisk) SuggestPositionSize(_ *domain.EnhancedOpportunity, maxSize float64) float64 {
	if r.size > 0 {
		return min(r.size, maxSize)
	}
	return maxSize
}

func (r *fakeRisk) CheckOpportunity(opp *domain.EnhancedOpportunity, _ float64) (bool, []string) {
	if r.reject[opp.ID] {
		return false, []string{"rejected"}
	}
	return true, nil
}

func (r *fakeRisk) AddExecution(opp *domain.EnhancedOpportunity, _ domain.ExecutionResult) {
	r.positions = append(r.positions, opp.ID)
}

func (r *fakeRisk) OpenMarkets() []string { return nil }

func (r *fakeRisk) ReleaseMarket(string) int { return 0 }

type fakeExecutor struct {
	sizes map[string]float64
}

func (e *fakeExecutor) Execute(_ context.Context, opp *domain.EnhancedOpportunity, size float64) domain.ExecutionResult {
	if e.sizes == nil {
		e.sizes = map[string]float64{}
	}
	e.sizes[opp.ID] = size
	now := time.Now()
	res := domain.ExecutionResult{
		ID:            "exec-" + opp.ID,
		OpportunityID: opp.ID,
		Status:        domain.ExecCompleted,
		TargetSize:    size,
		StartedAt:     now,
		CompletedAt:   now,
	}
	for _, leg := range opp.Legs {
		res.Legs = append(res.Legs, domain.LegExecution{
			Leg:          leg,
			TargetSize:   size,
			Status:       domain.ExecCompleted,
			FilledSize:   size,
			AvgFillPrice: leg.Price,
			CompletedAt:  now,
		})
	}
	return res
}

func opportunity(id string, profitPct float64, tokens ...string) *domain.EnhancedOpportunity {
	opp := &domain.EnhancedOpportunity{
		ID:               id,
		Class:            domain.ClassSingleCondition,
		TotalCost:        0.9,
		ProfitPercentage: profitPct,
		RiskLevel:        domain.RiskLow,
		MarketIDs:        []string{"m-" + id},
	}
	for _, tok := range tokens {
		opp.Legs = append(opp.Legs, domain.Leg{TokenID: tok, MarketID: "m-" + id, Side: domain.SideYes, Price: 0.45})
	}
	return opp
}

func TestRunOnce_MergesAndSortsByProfit(t *testing.T) {
	tracker := service.NewTracker()
	eng := NewEngine(Config{}, Deps{
		Markets: fakeMarkets{markets: []domain.Market{{ID: "m1"}, {ID: "m2"}}},
		Scanners: []scanner.Scanner{
			fixedScanner{name: "a", opps: []*domain.EnhancedOpportunity{opportunity("low", 1, "t1")}},
			fixedScanner{name: "b", opps: []*domain.EnhancedOpportunity{opportunity("high", 5, "t2")}},
		},
		Tracker: tracker,
	}, discardLogger())

	rep, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, rep.PassID)
	assert.Equal(t, 2, rep.Markets)
	require.Len(t, rep.Results, 2)
	assert.Equal(t, "a", rep.Results[0].Scanner)
	assert.Equal(t, "b", rep.Results[1].Scanner)
	require.Len(t, rep.Opportunities, 2)
	assert.Equal(t, "high", rep.Opportunities[0].ID)
	assert.Equal(t, "low", rep.Opportunities[1].ID)
	assert.Equal(t, 2, tracker.Metrics().Opportunities)
	assert.Empty(t, rep.Executions)
}

func TestRunOnce_SnapshotErrorFailsPass(t *testing.T) {
	eng := NewEngine(Config{}, Deps{
		Markets: fakeMarkets{err: errors.New("gamma down")},
		Tracker: service.NewTracker(),
	}, discardLogger())

	_, err := eng.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRunOnce_SinkFailuresDoNotAbort(t *testing.T) {
	pub := &recordingPublisher{}
	eng := NewEngine(Config{}, Deps{
		Markets:       fakeMarkets{},
		Scanners:      []scanner.Scanner{fixedScanner{name: "a", opps: []*domain.EnhancedOpportunity{opportunity("o1", 2, "t1")}}},
		Tracker:       service.NewTracker(),
		Opportunities: failingStore{},
		Publisher:     pub,
	}, discardLogger())

	rep, err := eng.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.SinkErrors)
	assert.Equal(t, []string{"o1"}, pub.opps)
}

func TestRunOnce_AnnotatesHighRuleRisk(t *testing.T) {
	risky := domain.Market{ID: "m-o1", Question: "Will it happen?", Rules: "void cancel discretion dispute unclear replacement"}
	eng := NewEngine(Config{}, Deps{
		Markets:  fakeMarkets{markets: []domain.Market{risky}},
		Scanners: []scanner.Scanner{fixedScanner{name: "a", opps: []*domain.EnhancedOpportunity{opportunity("o1", 2, "t1")}}},
		Tracker:  service.NewTracker(),
		Rules:    analysis.HeuristicRuleAnalyzer{},
	}, discardLogger())

	rep, err := eng.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Opportunities, 1)
	assert.Equal(t, domain.RiskHigh, rep.Opportunities[0].RiskLevel)
	assert.NotEmpty(t, rep.Opportunities[0].RuleRiskNotes)
}

func TestRunOnce_MaxRuleRiskFiltersMarkets(t *testing.T) {
	markets := []domain.Market{
		{ID: "safe", Question: "Will the sun rise?", Rules: "Resolves yes if the sun rises."},
		{ID: "risky", Question: "Will it happen?", Rules: "void cancel discretion dispute unclear replacement"},
	}
	eng := NewEngine(Config{MaxRuleRisk: domain.RuleRiskMedium}, Deps{
		Markets:  fakeMarkets{markets: markets},
		Scanners: []scanner.Scanner{fixedScanner{name: "a"}},
		Tracker:  service.NewTracker(),
		Rules:    analysis.HeuristicRuleAnalyzer{},
	}, discardLogger())

	rep, err := eng.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Markets)
	assert.Equal(t, 1, rep.Results[0].Scanned)
}

func TestRunOnce_ExecutesBestFirstAndRecords(t *testing.T) {
	rk := &fakeRisk{reject: map[string]bool{"bad": true}}
	ex := &fakeExecutor{}
	fills := &domaintest.Fills{}
	pub := &recordingPublisher{}
	tracker := service.NewTracker()

	withCap := opportunity("capped", 3, "t3", "t4")
	withCap.MaxSize = domain.Float64Ptr(25)

	eng := NewEngine(Config{ExecutionEnabled: true, DefaultSize: 100, UserID: "me"}, Deps{
		Markets: fakeMarkets{},
		Scanners: []scanner.Scanner{fixedScanner{name: "a", opps: []*domain.EnhancedOpportunity{
			opportunity("good", 2, "t1", "t2"),
			opportunity("bad", 4, "t5"),
			withCap,
		}}},
		Tracker:   tracker,
		Fills:     fills,
		Publisher: pub,
		Risk:      rk,
		Executor:  ex,
		Dedup:     executor.NewDedup(time.Minute),
	}, discardLogger())

	rep, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Rejected)
	require.Len(t, rep.Executions, 2)
	assert.Equal(t, "capped", rep.Executions[0].OpportunityID)
	assert.Equal(t, "good", rep.Executions[1].OpportunityID)
	assert.Equal(t, 25.0, ex.sizes["capped"])
	assert.Equal(t, 100.0, ex.sizes["good"])
	assert.Equal(t, []string{"capped", "good"}, rk.positions)
	assert.Equal(t, []string{"capped", "good"}, pub.execs)
	assert.Equal(t, 2, tracker.Metrics().Executions)

	f, err := fills.LatestFill(context.Background(), "me", "t3")
	require.NoError(t, err)
	assert.Equal(t, 25.0, f.Size)
	assert.Equal(t, "capped", f.OpportunityID)
}

func TestRunOnce_DedupSkipsRepeatAndRetriesRejected(t *testing.T) {
	rk := &fakeRisk{reject: map[string]bool{"bad": true}}
	ex := &fakeExecutor{}
	eng := NewEngine(Config{ExecutionEnabled: true, DefaultSize: 10}, Deps{
		Markets: fakeMarkets{},
		Scanners: []scanner.Scanner{fixedScanner{name: "a", opps: []*domain.EnhancedOpportunity{
			opportunity("good", 2, "t1"),
			opportunity("bad", 1, "t2"),
		}}},
		Tracker:  service.NewTracker(),
		Risk:     rk,
		Executor: ex,
		Dedup:    executor.NewDedup(time.Minute),
	}, discardLogger())

	first, err := eng.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.Executions, 1)
	assert.Equal(t, 1, first.Rejected)

	second, err := eng.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Executions)
	assert.Equal(t, 1, second.Duplicates)
	assert.Equal(t, 1, second.Rejected)
}

func TestRunOnce_ZeroSizeIsRejected(t *testing.T) {
	ex := &fakeExecutor{}
	eng := NewEngine(Config{ExecutionEnabled: true, DefaultSize: 10}, Deps{
		Markets:  fakeMarkets{},
		Scanners: []scanner.Scanner{fixedScanner{name: "a", opps: []*domain.EnhancedOpportunity{opportunity("o1", 2, "t1")}}},
		Tracker:  service.NewTracker(),
		Risk:     zeroRisk{},
		Executor: ex,
	}, discardLogger())

	rep, err := eng.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rejected)
	assert.Empty(t, ex.sizes)
}

type zeroRisk struct{}

func (zeroRisk) SuggestPositionSize(*domain.EnhancedOpportunity, float64) float64 { return 0 }
func (zeroRisk) CheckOpportunity(*domain.EnhancedOpportunity, float64) (bool, []string) {
	return true, nil
}
func (zeroRisk) AddExecution(*domain.EnhancedOpportunity, domain.ExecutionResult) {}
func (zeroRisk) OpenMarkets() []string { return nil }
func (zeroRisk) ReleaseMarket(string) int { return 0 }

// failTokenFiller fills every leg except the listed tokens.
type failTokenFiller map[string]bool

func (f failTokenFiller) Fill(ctx context.Context, leg domain.Leg, size float64, aggressive bool) (executor.LegFill, error) {
	if f[leg.TokenID] {
		return executor.LegFill{}, errors.New("order rejected")
	}
	return executor.SimulatedFiller{}.Fill(ctx, leg, size, aggressive)
}

func TestRunOnce_AbortedBasketRecordsFilledLegs(t *testing.T) {
	rk := risk.NewManager(risk.DefaultLimits(), discardLogger())
	ex := executor.NewBasketExecutor(failTokenFiller{"b": true}, executor.DefaultConfig(), discardLogger())
	opp := opportunity("o1", 5, "a", "b", "c")
	opp.TotalCost = 0.45 * 3

	eng := NewEngine(Config{ExecutionEnabled: true, DefaultSize: 10}, Deps{
		Markets:  fakeMarkets{},
		Scanners: []scanner.Scanner{fixedScanner{name: "a", opps: []*domain.EnhancedOpportunity{opp}}},
		Tracker:  service.NewTracker(),
		Risk:     rk,
		Executor: ex,
	}, discardLogger())

	rep, err := eng.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Executions, 1)
	res := rep.Executions[0]
	assert.Equal(t, domain.ExecAborted, res.Status)
	require.Len(t, res.Legs, 2)
	assert.Equal(t, 10.0, res.Legs[0].FilledSize)

	sum := rk.ExposureSummary()
	assert.Equal(t, 1, sum.TotalPositions)
	assert.InDelta(t, res.ActualCost, sum.TotalNotional, 1e-9)
	p, ok := rk.Position("a")
	require.True(t, ok)
	assert.Equal(t, 10.0, p.Size)
	_, ok = rk.Position("b")
	assert.False(t, ok)
}

type fakeLookup map[string]domain.Market

func (f fakeLookup) GetMarket(_ context.Context, id string) (domain.Market, error) {
	m, ok := f[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func TestRunOnce_ReleasesSettledMarkets(t *testing.T) {
	rk := risk.NewManager(risk.DefaultLimits(), discardLogger())
	rk.AddPosition(opportunity("closed", 5, "c1", "c2"), 10, "e1")
	rk.AddPosition(opportunity("open", 5, "o1"), 10, "e2")
	rk.AddPosition(opportunity("unknown", 5, "u1"), 10, "e3")

	eng := NewEngine(Config{ExecutionEnabled: true, DefaultSize: 10}, Deps{
		Markets:  fakeMarkets{},
		Tracker:  service.NewTracker(),
		Risk:     rk,
		Executor: &fakeExecutor{},
		Settlement: fakeLookup{
			"m-closed": {ID: "m-closed", Active: false},
			"m-open":   {ID: "m-open", Active: true},
		},
	}, discardLogger())

	rep, err := eng.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Released)
	assert.Equal(t, []string{"m-open", "m-unknown"}, rk.OpenMarkets())
	assert.Equal(t, 2, rk.ExposureSummary().TotalPositions)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	passes := 0
	eng := NewEngine(Config{}, Deps{
		Markets: fakeMarkets{},
		Tracker: service.NewTracker(),
	}, discardLogger())

	err := eng.Run(ctx, time.Millisecond, func(*Report) {
		passes++
		if passes == 2 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, passes)
}

type countingCache struct{ clears int }

func (c *countingCache) ClearCache() { c.clears++ }

func TestRunOnce_ClearsPriceCacheEachPass(t *testing.T) {
	cache := &countingCache{}
	eng := NewEngine(Config{}, Deps{
		Markets: fakeMarkets{},
		Tracker: service.NewTracker(),
		Prices:  cache,
	}, discardLogger())

	for range 2 {
		_, err := eng.RunOnce(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cache.clears)
}
