package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func opp(id string, class domain.OpportunityClass, profit, pct float64) *domain.EnhancedOpportunity {
	return &domain.EnhancedOpportunity{ID: id, Class: class, ExpectedProfit: profit, ProfitPercentage: pct}
}

func TestTracker_Metrics(t *testing.T) {
	tr := NewTracker()
	tr.AddOpportunity(opp("a", domain.ClassSingleCondition, 0.05, 5.26))
	tr.AddOpportunity(opp("b", domain.ClassNegRiskRebalancing, 0.10, 11.1))
	tr.AddOpportunity(opp("c", domain.ClassNegRiskRebalancing, 0.03, 3.1))
	tr.AddOpportunity(nil)

	tr.AddExecution(domain.ExecutionResult{Status: domain.ExecCompleted, RealizedSlippageBps: 4})
	tr.AddExecution(domain.ExecutionResult{Status: domain.ExecAborted, RealizedSlippageBps: 0})
	tr.AddExecution(domain.ExecutionResult{Status: domain.ExecPartial, RealizedSlippageBps: 8})

	m := tr.Metrics()
	assert.Equal(t, 3, m.Opportunities)
	assert.InDelta(t, 0.18, m.TotalExpectedProfit, 1e-9)
	assert.InDelta(t, 0.06, m.AvgExpectedProfit, 1e-9)
	assert.Equal(t, 11.1, m.BestProfitPercentage)
	assert.Equal(t, 3, m.Executions)
	assert.Equal(t, 1, m.Completed)
	assert.Equal(t, 1, m.Partial)
	assert.Equal(t, 1, m.Aborted)
	assert.Zero(t, m.Failed)
	assert.InDelta(t, 4, m.AvgSlippageBps, 1e-9)
	assert.Equal(t, 2, m.ByClass[domain.ClassNegRiskRebalancing].Count)
	assert.InDelta(t, 0.13, m.ByClass[domain.ClassNegRiskRebalancing].TotalProfit, 1e-9)
}

func TestTracker_Metrics_Empty(t *testing.T) {
	m := NewTracker().Metrics()
	assert.Zero(t, m.Opportunities)
	assert.Zero(t, m.AvgExpectedProfit)
	assert.Zero(t, m.AvgSlippageBps)
	assert.NotNil(t, m.ByClass)
}

func TestTracker_TopAndFilter(t *testing.T) {
	tr := NewTracker()
	tr.AddOpportunity(opp("a", domain.ClassSingleCondition, 0, 2))
	tr.AddOpportunity(opp("b", domain.ClassNegRiskRebalancing, 0, 9))
	tr.AddOpportunity(opp("c", domain.ClassSingleCondition, 0, 5))

	top := tr.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].ID)
	assert.Equal(t, "c", top[1].ID)
	assert.Len(t, tr.Top(10), 3)

	got := tr.Filter(domain.ClassSingleCondition, 3)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
	assert.Len(t, tr.Filter("", 0), 3)

	tr.Reset()
	assert.Empty(t, tr.Top(5))
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.AddOpportunity(opp("x", domain.ClassSingleCondition, 1, 1))
			tr.AddExecution(domain.ExecutionResult{Status: domain.ExecCompleted})
			_ = tr.Metrics()
		}()
	}
	wg.Wait()
	m := tr.Metrics()
	assert.Equal(t, 50, m.Opportunities)
	assert.Equal(t, 50, m.Completed)
}

type stubMarkets struct {
	markets []domain.Market
	err     error
}

func (s stubMarkets) ListMarkets(context.Context, int) ([]domain.Market, error) {
	return s.markets, s.err
}

func TestMarketService_Snapshot(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	good := domain.Market{ID: "m1", Active: true, Outcomes: []domain.Outcome{{Label: "Yes", YesTokenID: "y", NoTokenID: "n"}}}
	svc := NewMarketService(stubMarkets{markets: []domain.Market{
		good,
		{ID: "closed", Outcomes: good.Outcomes},
		{ID: "broken", Active: true},
	}}, logger)

	got, err := svc.Snapshot(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)

	_, err = NewMarketService(stubMarkets{err: errors.New("down")}, logger).Snapshot(context.Background(), 10)
	assert.ErrorContains(t, err, "market_service: list markets")
}
