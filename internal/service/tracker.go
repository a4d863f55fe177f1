package service

import (
	"slices"
	"sync"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ClassStats aggregates opportunities of one class.
type ClassStats struct {
	Count       int     `json:"count"`
	TotalProfit float64 `json:"total_profit"`
}

// Metrics is a snapshot of tracker state.
type Metrics struct {
	Opportunities        int     `json:"opportunities"`
	TotalExpectedProfit  float64 `json:"total_expected_profit"`
	AvgExpectedProfit    float64 `json:"avg_expected_profit"`
	BestProfitPercentage float64 `json:"best_profit_percentage"`

	Executions     int     `json:"executions"`
	Completed      int     `json:"completed"`
	Partial        int     `json:"partial"`
	Failed         int     `json:"failed"`
	Aborted        int     `json:"aborted"`
	AvgSlippageBps float64 `json:"avg_slippage_bps"`

	ByClass map[domain.OpportunityClass]ClassStats `json:"by_class"`
}

// Tracker records every opportunity and execution seen by the engine. It is
// safe for concurrent use.
type Tracker struct {
	mu            sync.RWMutex
	opportunities []*domain.EnhancedOpportunity
	executions    []domain.ExecutionResult
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// AddOpportunity records opp.
func (t *Tracker) AddOpportunity(opp *domain.EnhancedOpportunity) {
	if opp == nil {
		return
	}
	t.mu.Lock()
	t.opportunities = append(t.opportunities, opp)
	t.mu.Unlock()
}

// AddExecution records res.
func (t *Tracker) AddExecution(res domain.ExecutionResult) {
	t.mu.Lock()
	t.executions = append(t.executions, res)
	t.mu.Unlock()
}

// Metrics computes the aggregate view.
func (t *Tracker) Metrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := Metrics{
		Opportunities: len(t.opportunities),
		Executions:    len(t.executions),
		ByClass:       make(map[domain.OpportunityClass]ClassStats),
	}
	for i, opp := range t.opportunities {
		m.TotalExpectedProfit += opp.ExpectedProfit
		if i == 0 || opp.ProfitPercentage > m.BestProfitPercentage {
			m.BestProfitPercentage = opp.ProfitPercentage
		}
		cs := m.ByClass[opp.Class]
		cs.Count++
		cs.TotalProfit += opp.ExpectedProfit
		m.ByClass[opp.Class] = cs
	}
	if m.Opportunities > 0 {
		m.AvgExpectedProfit = m.TotalExpectedProfit / float64(m.Opportunities)
	}

	var slippage float64
	for _, res := range t.executions {
		switch res.Status {
		case domain.ExecCompleted:
			m.Completed++
		case domain.ExecPartial:
			m.Partial++
		case domain.ExecFailed:
			m.Failed++
		case domain.ExecAborted:
			m.Aborted++
		}
		slippage += res.RealizedSlippageBps
	}
	if m.Executions > 0 {
		m.AvgSlippageBps = slippage / float64(m.Executions)
	}
	return m
}

// Top returns up to n opportunities by profit percentage, highest first.
func (t *Tracker) Top(n int) []*domain.EnhancedOpportunity {
	t.mu.RLock()
	out := slices.Clone(t.opportunities)
	t.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b *domain.EnhancedOpportunity) int {
		switch {
		case a.ProfitPercentage > b.ProfitPercentage:
			return -1
		case a.ProfitPercentage < b.ProfitPercentage:
			return 1
		}
		return 0
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Filter returns opportunities of class (any class when empty) with profit
// percentage of at least minProfit, in insertion order.
func (t *Tracker) Filter(class domain.OpportunityClass, minProfit float64) []*domain.EnhancedOpportunity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*domain.EnhancedOpportunity
	for _, opp := range t.opportunities {
		if class != "" && opp.Class != class {
			continue
		}
		if opp.ProfitPercentage >= minProfit {
			out = append(out, opp)
		}
	}
	return out
}

// Executions returns a copy of the recorded execution results.
func (t *Tracker) Executions() []domain.ExecutionResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.executions)
}

// Reset drops all recorded state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.opportunities = nil
	t.executions = nil
	t.mu.Unlock()
}
