package risk

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func newManager(l Limits) *Manager {
	return NewManager(l, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func makeOpp(id string, cost, pct float64, markets ...string) *domain.EnhancedOpportunity {
	opp := &domain.EnhancedOpportunity{
		ID:               id,
		TotalCost:        cost,
		ProfitPercentage: pct,
		MarketIDs:        markets,
		RiskLevel:        domain.RiskLow,
	}
	for _, m := range markets {
		opp.Legs = append(opp.Legs, domain.Leg{TokenID: id + "-" + m, MarketID: m, Price: cost / float64(len(markets))})
	}
	return opp
}

func TestManager_CheckOpportunity_Passes(t *testing.T) {
	m := newManager(DefaultLimits())
	passed, violations := m.CheckOpportunity(makeOpp("o1", 0.95, 5, "m1", "m2"), 100)
	assert.True(t, passed)
	assert.Empty(t, violations)
}

func TestManager_AddPosition_TotalNotionalAdditive(t *testing.T) {
	m := newManager(DefaultLimits())
	opp := makeOpp("o1", 0.9, 5, "m1", "m2")

	m.AddPosition(opp, 1000, "exec-1")
	sum := m.ExposureSummary()
	assert.InDelta(t, 900, sum.TotalNotional, 1e-9)
	assert.Equal(t, 2, sum.TotalPositions)
	assert.InDelta(t, 450, sum.MarketExposures["m1"], 1e-9)
	assert.InDelta(t, 450, sum.MarketExposures["m2"], 1e-9)
	assert.InDelta(t, 0.09, sum.Utilization.TotalNotional, 1e-9)

	// 900 + 0.9*10200 = 10080 > 10000
	big := makeOpp("o2", 0.9, 5, "m3", "m4", "m5", "m6", "m7", "m8", "m9", "m10", "m11", "m12")
	passed, violations := m.CheckOpportunity(big, 10200)
	assert.False(t, passed)
	require.NotEmpty(t, violations)
	assert.Contains(t, violations[0], "max total notional")
}

func TestManager_CheckOpportunity_ReportsEveryViolation(t *testing.T) {
	l := DefaultLimits()
	l.MaxPositions = 1
	m := newManager(l)
	m.AddPosition(makeOpp("seed", 0.5, 5, "m0"), 1, "exec-0")

	opp := makeOpp("o1", 0.9, 0.1, "m1")
	opp.StrategyID = "s1"
	opp.Topic = "politics"
	opp.RiskLevel = domain.RiskHigh
	opp.LiquidityScore = domain.Float64Ptr(0.2)

	passed, violations := m.CheckOpportunity(opp, 5000)
	assert.False(t, passed)
	assert.Equal(t, []string{
		"Profit 0.10% below threshold 0.50%",
		"Would exceed per-strategy limit for s1",
		"Would exceed per-market limit for m1",
		"Would exceed per-topic limit for politics",
		"Would exceed rule risk exposure limit",
		"Liquidity score 0.20 below minimum 0.30",
		"Already at max positions limit: 1",
	}, violations)
}

func TestManager_CheckOpportunity_ZeroLiquidityIgnored(t *testing.T) {
	m := newManager(DefaultLimits())
	opp := makeOpp("o1", 0.9, 5, "m1")
	opp.LiquidityScore = domain.Float64Ptr(0)
	passed, _ := m.CheckOpportunity(opp, 1)
	assert.True(t, passed)
}

func TestManager_RemovePosition_ReleasesOnlyTotal(t *testing.T) {
	m := newManager(DefaultLimits())
	opp := makeOpp("o1", 0.8, 5, "m1", "m2")
	opp.StrategyID = "s1"
	opp.Topic = "sports"
	m.AddPosition(opp, 100, "exec-1")

	m.RemovePosition("o1-m1")
	sum := m.ExposureSummary()
	assert.InDelta(t, 40, sum.TotalNotional, 1e-9)
	assert.Equal(t, 1, sum.TotalPositions)
	assert.InDelta(t, 80, sum.StrategyExposures["s1"], 1e-9)
	assert.InDelta(t, 40, sum.MarketExposures["m1"], 1e-9)
	assert.InDelta(t, 80, sum.TopicExposures["sports"], 1e-9)

	m.RemovePosition("unknown")
	assert.InDelta(t, 40, m.ExposureSummary().TotalNotional, 1e-9)
}

func TestManager_AddPosition_LastWriteWins(t *testing.T) {
	m := newManager(DefaultLimits())
	first := makeOpp("o1", 0.5, 5, "m1")
	second := makeOpp("o2", 0.5, 5, "m1")
	second.Legs[0].TokenID = first.Legs[0].TokenID

	m.AddPosition(first, 10, "exec-1")
	m.AddPosition(second, 10, "exec-2")

	p, ok := m.Position(first.Legs[0].TokenID)
	require.True(t, ok)
	assert.Equal(t, "exec-2", p.ExecutionID)
	assert.Equal(t, 1, m.ExposureSummary().TotalPositions)
	assert.InDelta(t, 10, m.ExposureSummary().TotalNotional, 1e-9)
}

func TestManager_SuggestPositionSize(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Manager)
		opp     *domain.EnhancedOpportunity
		maxSize float64
		want    float64
	}{
		{
			name:    "default ceiling",
			opp:     makeOpp("o", 0.5, 5, "m1"),
			maxSize: 0,
			want:    100,
		},
		{
			name:    "liquidity ceiling",
			opp:     makeOpp("o", 0.5, 5, "m1"),
			maxSize: 40,
			want:    40,
		},
		{
			name:    "per-market headroom",
			opp:     makeOpp("o", 0.5, 5, "m1"),
			maxSize: 5000,
			want:    2000, // 1000 / 0.5
		},
		{
			name: "market split",
			setup: func(m *Manager) {
				m.AddPosition(makeOpp("seed", 1, 5, "m1"), 800, "e")
			},
			opp:     makeOpp("o", 1, 5, "m1", "m2"),
			maxSize: 5000,
			want:    400, // (1000-800) / (1/2)
		},
		{
			name: "exhausted",
			setup: func(m *Manager) {
				m.AddPosition(makeOpp("seed", 1, 5, "m1"), 1200, "e")
			},
			opp:     makeOpp("o", 1, 5, "m1"),
			maxSize: 10,
			want:    0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(DefaultLimits())
			if tt.setup != nil {
				tt.setup(m)
			}
			assert.InDelta(t, tt.want, m.SuggestPositionSize(tt.opp, tt.maxSize), 1e-9)
		})
	}
}

func TestManager_SuggestPositionSize_StrategyCap(t *testing.T) {
	m := newManager(DefaultLimits())
	opp := makeOpp("o", 0.5, 5, "a", "b", "c", "d")
	opp.StrategyID = "s1"
	// total 20000, strategy 4000, per-market 1000/0.125 = 8000
	assert.InDelta(t, 4000, m.SuggestPositionSize(opp, 1e6), 1e-9)
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := newManager(DefaultLimits())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			opp := makeOpp(string(rune('a'+i)), 0.5, 5, "m1")
			m.CheckOpportunity(opp, 1)
			m.AddPosition(opp, 1, "e")
		}(i)
	}
	wg.Wait()
	assert.InDelta(t, 10, m.ExposureSummary().TotalNotional, 1e-9)
}

func TestManager_RemovePosition_ReturnsToExactlyZero(t *testing.T) {
	m := newManager(DefaultLimits())
	opp := &domain.EnhancedOpportunity{
		ID:        "o1",
		TotalCost: 0.1 + 0.2 + 0.3,
		MarketIDs: []string{"m1"},
		Legs: []domain.Leg{
			{TokenID: "a", MarketID: "m1", Price: 0.1},
			{TokenID: "b", MarketID: "m1", Price: 0.2},
			{TokenID: "c", MarketID: "m1", Price: 0.3},
		},
	}
	m.AddPosition(opp, 7, "exec-1")
	assert.Equal(t, 4.2, m.ExposureSummary().TotalNotional)

	for _, tok := range []string{"a", "b", "c"} {
		m.RemovePosition(tok)
	}
	sum := m.ExposureSummary()
	assert.Equal(t, 0.0, sum.TotalNotional)
	assert.Equal(t, 0, sum.TotalPositions)
}

func TestManager_AddExecution_RecordsOnlyFilledLegs(t *testing.T) {
	m := newManager(DefaultLimits())
	opp := makeOpp("o1", 0.9, 5, "m1", "m2", "m3")
	opp.StrategyID = "s1"

	res := domain.ExecutionResult{
		ID:     "exec-1",
		Status: domain.ExecAborted,
		Legs: []domain.LegExecution{
			{Leg: opp.Legs[0], Status: domain.ExecCompleted, FilledSize: 10, AvgFillPrice: 0.45},
			{Leg: opp.Legs[1], Status: domain.ExecFailed},
			{Leg: opp.Legs[2], Status: domain.ExecAborted},
		},
	}
	m.AddExecution(opp, res)

	sum := m.ExposureSummary()
	assert.InDelta(t, 4.5, sum.TotalNotional, 1e-12)
	assert.Equal(t, 1, sum.TotalPositions)
	assert.InDelta(t, 4.5, sum.StrategyExposures["s1"], 1e-12)

	p, ok := m.Position(opp.Legs[0].TokenID)
	require.True(t, ok)
	assert.Equal(t, 10.0, p.Size)
	assert.InDelta(t, 4.5, p.Cost, 1e-12)
	assert.Equal(t, "exec-1", p.ExecutionID)

	_, ok = m.Position(opp.Legs[1].TokenID)
	assert.False(t, ok)
}

func TestManager_AddExecution_NothingFilled(t *testing.T) {
	m := newManager(DefaultLimits())
	opp := makeOpp("o1", 0.9, 5, "m1")
	m.AddExecution(opp, domain.ExecutionResult{ID: "e", Legs: []domain.LegExecution{{Leg: opp.Legs[0], Status: domain.ExecFailed}}})
	assert.Equal(t, 0, m.ExposureSummary().TotalPositions)
	assert.Empty(t, m.ExposureSummary().StrategyExposures)
}

func TestManager_ReleaseMarket(t *testing.T) {
	m := newManager(DefaultLimits())
	m.AddPosition(makeOpp("o1", 0.8, 5, "m1", "m2"), 10, "e1")
	m.AddPosition(makeOpp("o2", 0.5, 5, "m3"), 10, "e2")
	assert.Equal(t, []string{"m1", "m2", "m3"}, m.OpenMarkets())

	assert.Equal(t, 1, m.ReleaseMarket("m1"))
	assert.Equal(t, 0, m.ReleaseMarket("m1"))
	assert.Equal(t, []string{"m2", "m3"}, m.OpenMarkets())

	sum := m.ExposureSummary()
	assert.Equal(t, 2, sum.TotalPositions)
	assert.InDelta(t, 9, sum.TotalNotional, 1e-12)
}
