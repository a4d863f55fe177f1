// Package risk enforces exposure limits on arbitrage baskets before they are
// executed and tracks the positions that result.
package risk

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// defaultSuggestedSize is used when the caller has no liquidity ceiling.
const defaultSuggestedSize = 100.0

// Limits holds the notional, position and quality limits. Notional values are
// in USDC.
type Limits struct {
	MaxTotalNotional       float64
	MaxPerStrategyNotional float64
	MaxPerMarketNotional   float64
	MaxPerEntityNotional   float64
	MaxPerTopicNotional    float64

	MaxPositions          int
	MaxPositionsPerMarket int

	MinProfitPct        float64
	MaxRuleRiskExposure float64

	MaxSlippageBps    float64
	MinLiquidityScore float64
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
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
	}
}

// Position is one tracked leg of an executed basket.
type Position struct {
	TokenID       string
	OpportunityID string
	ExecutionID   string
	MarketID      string
	Side          domain.PositionSide
	Size          float64
	Cost          float64
}

// Utilization is exposure as a fraction of its limit.
type Utilization struct {
	TotalNotional float64 `json:"total_notional"`
	Positions     float64 `json:"positions"`
	RuleRisk      float64 `json:"rule_risk"`
}

// Exposure is a point-in-time summary of tracked exposure.
type Exposure struct {
	TotalNotional     float64            `json:"total_notional"`
	TotalPositions    int                `json:"total_positions"`
	RuleRiskExposure  float64            `json:"rule_risk_exposure"`
	StrategyExposures map[string]float64 `json:"strategy_exposures"`
	MarketExposures   map[string]float64 `json:"market_exposures"`
	TopicExposures    map[string]float64 `json:"topic_exposures"`
	Utilization       Utilization        `json:"utilization"`
}

type position struct {
	Position
	cost decimal.Decimal
}

// Manager checks opportunities against Limits and tracks open positions. It
// is safe for concurrent use. Notional is accumulated in decimal so that
// releasing every position returns the books to exactly zero.
type Manager struct {
	limits Limits
	logger *slog.Logger

	mu        sync.Mutex
	positions map[string]position
	strategy  map[string]decimal.Decimal
	market    map[string]decimal.Decimal
	topic     map[string]decimal.Decimal
	total     decimal.Decimal
	ruleRisk  decimal.Decimal
}

// NewManager creates a Manager with the given limits.
func NewManager(limits Limits, logger *slog.Logger) *Manager {
	return &Manager{
		limits:    limits,
		logger:    logger.With(slog.String("component", "risk")),
		positions: make(map[string]position),
		strategy:  make(map[string]decimal.Decimal),
		market:    make(map[string]decimal.Decimal),
		topic:     make(map[string]decimal.Decimal),
	}
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits { return m.limits }

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// exceeds reports whether current+add is over limit.
func exceeds(current, add decimal.Decimal, limit float64) bool {
	return current.Add(add).GreaterThan(dec(limit))
}

// CheckOpportunity evaluates every rule against the proposed size and returns
// all violations. passed is true when there are none.
func (m *Manager) CheckOpportunity(opp *domain.EnhancedOpportunity, size float64) (passed bool, violations []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.limits
	notional := dec(opp.TotalCost).Mul(dec(size))

	if opp.ProfitPercentage < l.MinProfitPct {
		violations = append(violations, fmt.Sprintf("Profit %.2f%% below threshold %.2f%%", opp.ProfitPercentage, l.MinProfitPct))
	}

	if exceeds(m.total, notional, l.MaxTotalNotional) {
		violations = append(violations, fmt.Sprintf("Would exceed max total notional: %s > %.2f",
			m.total.Add(notional).StringFixed(2), l.MaxTotalNotional))
	}

	if opp.StrategyID != "" && exceeds(m.strategy[opp.StrategyID], notional, l.MaxPerStrategyNotional) {
		violations = append(violations, fmt.Sprintf("Would exceed per-strategy limit for %s", opp.StrategyID))
	}

	if n := len(opp.MarketIDs); n > 0 {
		share := notional.Div(decimal.NewFromInt(int64(n)))
		for _, id := range opp.MarketIDs {
			if exceeds(m.market[id], share, l.MaxPerMarketNotional) {
				violations = append(violations, fmt.Sprintf("Would exceed per-market limit for %s", id))
			}
		}
	}

	if opp.Topic != "" && exceeds(m.topic[opp.Topic], notional, l.MaxPerTopicNotional) {
		violations = append(violations, fmt.Sprintf("Would exceed per-topic limit for %s", opp.Topic))
	}

	if opp.RiskLevel == domain.RiskHigh && exceeds(m.ruleRisk, notional, l.MaxRuleRiskExposure) {
		violations = append(violations, "Would exceed rule risk exposure limit")
	}

	// A zero score means unknown liquidity and is not penalised.
	if ls := opp.LiquidityScore; ls != nil && *ls > 0 && *ls < l.MinLiquidityScore {
		violations = append(violations, fmt.Sprintf("Liquidity score %.2f below minimum %.2f", *ls, l.MinLiquidityScore))
	}

	if len(m.positions) >= l.MaxPositions {
		violations = append(violations, fmt.Sprintf("Already at max positions limit: %d", l.MaxPositions))
	}

	if len(violations) > 0 {
		m.logger.Info("opportunity rejected",
			slog.String("opportunity_id", opp.ID),
			slog.Float64("size", size),
			slog.Any("violations", violations),
		)
	}
	return len(violations) == 0, violations
}

// legFill is one leg to track with its size and notional.
type legFill struct {
	leg  domain.Leg
	size decimal.Decimal
	cost decimal.Decimal
}

// AddPosition records a basket filled in full at its quoted prices. Each leg
// is tracked under its token id; a later basket on the same token replaces
// the entry.
func (m *Manager) AddPosition(opp *domain.EnhancedOpportunity, size float64, executionID string) {
	sz := dec(size)
	fills := make([]legFill, 0, len(opp.Legs))
	for _, leg := range opp.Legs {
		fills = append(fills, legFill{leg: leg, size: sz, cost: dec(leg.Price).Mul(sz)})
	}
	value := dec(opp.TotalCost).Mul(sz)
	if len(fills) > 0 {
		value = sumCost(fills)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.track(opp, fills, value, executionID)
}

// AddExecution records the legs of res that actually filled, at their filled
// size and average fill price. Baskets that aborted after some legs filled
// still leave that exposure on the books.
func (m *Manager) AddExecution(opp *domain.EnhancedOpportunity, res domain.ExecutionResult) {
	var fills []legFill
	for _, le := range res.Legs {
		if le.FilledSize <= 0 {
			continue
		}
		sz := dec(le.FilledSize)
		fills = append(fills, legFill{leg: le.Leg, size: sz, cost: dec(le.AvgFillPrice).Mul(sz)})
	}
	if len(fills) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.track(opp, fills, sumCost(fills), res.ID)
}

func sumCost(fills []legFill) decimal.Decimal {
	sum := decimal.Zero
	for _, f := range fills {
		sum = sum.Add(f.cost)
	}
	return sum
}

// track must be called with mu held.
func (m *Manager) track(opp *domain.EnhancedOpportunity, fills []legFill, value decimal.Decimal, executionID string) {
	for _, f := range fills {
		m.positions[f.leg.TokenID] = position{
			Position: Position{
				TokenID:       f.leg.TokenID,
				OpportunityID: opp.ID,
				ExecutionID:   executionID,
				MarketID:      f.leg.MarketID,
				Side:          f.leg.Side,
				Size:          f.size.InexactFloat64(),
				Cost:          f.cost.InexactFloat64(),
			},
			cost: f.cost,
		}
	}

	m.total = m.total.Add(value)
	if opp.StrategyID != "" {
		m.strategy[opp.StrategyID] = m.strategy[opp.StrategyID].Add(value)
	}
	if n := len(opp.MarketIDs); n > 0 {
		share := value.Div(decimal.NewFromInt(int64(n)))
		for _, id := range opp.MarketIDs {
			m.market[id] = m.market[id].Add(share)
		}
	}
	if opp.Topic != "" {
		m.topic[opp.Topic] = m.topic[opp.Topic].Add(value)
	}
	if opp.RiskLevel == domain.RiskHigh {
		m.ruleRisk = m.ruleRisk.Add(value)
	}
}

// RemovePosition drops a settled leg. Only the total notional is released;
// strategy, market, topic and rule-risk exposure stay as recorded.
func (m *Manager) RemovePosition(tokenID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(tokenID)
}

func (m *Manager) removeLocked(tokenID string) bool {
	p, ok := m.positions[tokenID]
	if !ok {
		return false
	}
	m.total = m.total.Sub(p.cost)
	delete(m.positions, tokenID)
	return true
}

// OpenMarkets returns the distinct market ids that hold positions, sorted.
func (m *Manager) OpenMarkets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	for _, p := range m.positions {
		if p.MarketID != "" {
			seen[p.MarketID] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// ReleaseMarket removes every position in marketID, as RemovePosition does
// per leg, and returns how many were removed.
func (m *Manager) ReleaseMarket(marketID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tokens []string
	for token, p := range m.positions {
		if p.MarketID == marketID {
			tokens = append(tokens, token)
		}
	}
	n := 0
	for _, token := range tokens {
		if m.removeLocked(token) {
			n++
		}
	}
	if n > 0 {
		m.logger.Info("positions released", slog.String("market_id", marketID), slog.Int("positions", n))
	}
	return n
}

// Position returns the tracked leg for tokenID.
func (m *Manager) Position(tokenID string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[tokenID]
	return p.Position, ok
}

// SuggestPositionSize sizes a basket to fit the remaining total, strategy and
// market headroom. maxSize is the liquidity ceiling; zero selects 100.
func (m *Manager) SuggestPositionSize(opp *domain.EnhancedOpportunity, maxSize float64) float64 {
	if opp.TotalCost <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.limits
	size := dec(maxSize)
	if maxSize <= 0 {
		size = dec(defaultSuggestedSize)
	}
	cost := dec(opp.TotalCost)

	size = decimal.Min(size, dec(l.MaxTotalNotional).Sub(m.total).Div(cost))
	if opp.StrategyID != "" {
		size = decimal.Min(size, dec(l.MaxPerStrategyNotional).Sub(m.strategy[opp.StrategyID]).Div(cost))
	}
	if n := len(opp.MarketIDs); n > 0 {
		perMarketCost := cost.Div(decimal.NewFromInt(int64(n)))
		for _, id := range opp.MarketIDs {
			size = decimal.Min(size, dec(l.MaxPerMarketNotional).Sub(m.market[id]).Div(perMarketCost))
		}
	}
	return decimal.Max(decimal.Zero, size).InexactFloat64()
}

// ExposureSummary returns a copy of the current exposure.
func (m *Manager) ExposureSummary() Exposure {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.limits
	return Exposure{
		TotalNotional:     m.total.InexactFloat64(),
		TotalPositions:    len(m.positions),
		RuleRiskExposure:  m.ruleRisk.InexactFloat64(),
		StrategyExposures: floats(m.strategy),
		MarketExposures:   floats(m.market),
		TopicExposures:    floats(m.topic),
		Utilization: Utilization{
			TotalNotional: ratio(m.total, l.MaxTotalNotional),
			Positions:     ratio(decimal.NewFromInt(int64(len(m.positions))), float64(l.MaxPositions)),
			RuleRisk:      ratio(m.ruleRisk, l.MaxRuleRiskExposure),
		},
	}
}

func floats(in map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v.InexactFloat64()
	}
	return out
}

func ratio(v decimal.Decimal, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return v.Div(dec(limit)).InexactFloat64()
}
