package scanner

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// maxPerShareCost rejects candidates whose summed per-share price is
// implausible.
const maxPerShareCost = 10.0

// Config holds the thresholds shared by every scanner.
type Config struct {
	MinProfitPct     float64
	MaxTotalPrice    float64
	PriceType        domain.PriceType
	SpreadMultiplier float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MinProfitPct:     0.5,
		MaxTotalPrice:    0.98,
		PriceType:        domain.PriceAsk,
		SpreadMultiplier: 1.0,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxTotalPrice <= 0 {
		c.MaxTotalPrice = d.MaxTotalPrice
	}
	if c.PriceType == "" {
		c.PriceType = d.PriceType
	}
	if c.SpreadMultiplier == 0 {
		c.SpreadMultiplier = d.SpreadMultiplier
	}
	return c
}

// depthFunc picks the depth a leg reports from its top of book.
type depthFunc func(domain.SpreadInfo) float64

func askDepth(s domain.SpreadInfo) float64 { return s.BestAskSize }
func twoSidedDepth(s domain.SpreadInfo) float64 { return s.BestAskSize + s.BestBidSize }

// base carries what every scanner shares.
type base struct {
	prices PriceSource
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func newBase(prices PriceSource, cfg Config, logger *slog.Logger, name string) base {
	return base{
		prices: prices,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "scanner"), slog.String("scanner", name)),
		now:    time.Now,
	}
}

// buyPrices fetches the configured price type for tokenIDs in one batch.
// Unpriceable tokens are absent from the map.
func (b *base) buyPrices(ctx context.Context, tokenIDs []string) map[string]float64 {
	if len(tokenIDs) == 0 {
		return nil
	}
	return b.prices.Prices(ctx, tokenIDs, b.cfg.PriceType, domain.OrderSideBuy)
}

// ProfitMetrics returns expected profit and profit percentage. The percentage
// is zero unless cost is positive.
func ProfitMetrics(totalCost, worstCasePayoff float64) (profit, pct float64) {
	profit = worstCasePayoff - totalCost
	if totalCost > 0 {
		pct = profit / totalCost * 100
	}
	return profit, pct
}

func (b *base) valid(pct, cost float64) bool {
	if pct < b.cfg.MinProfitPct {
		return false
	}
	return cost > 0 && cost <= maxPerShareCost
}

// AdjustForSpread charges each leg's spread against the total cost.
func AdjustForSpread(totalCost float64, legs []domain.Leg, multiplier float64) float64 {
	adj := 0.0
	for _, l := range legs {
		if l.SpreadBps != 0 {
			adj += l.SpreadBps / 10000 * l.Price * multiplier
		}
	}
	return totalCost + adj
}

// LiquidityScore maps the thinnest leg depth to [0,1].
func LiquidityScore(legs []domain.Leg) float64 {
	if len(legs) == 0 {
		return 0
	}
	minDepth, ok := minLegDepth(legs)
	if !ok {
		return 0.5
	}
	switch {
	case minDepth >= 1000:
		return 1.0
	case minDepth >= 500:
		return 0.8
	case minDepth >= 100:
		return 0.6
	case minDepth >= 50:
		return 0.4
	default:
		return 0.2
	}
}

func minLegDepth(legs []domain.Leg) (float64, bool) {
	minDepth := math.Inf(1)
	found := false
	for _, l := range legs {
		if l.Depth > 0 {
			minDepth = math.Min(minDepth, l.Depth)
			found = true
		}
	}
	return minDepth, found
}

// legSet appends legs while keeping token ids unique.
type legSet struct {
	legs []domain.Leg
	seen map[string]struct{}
	cost float64
}

func (s *legSet) add(l domain.Leg) bool {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, dup := s.seen[l.TokenID]; dup {
		return false
	}
	s.seen[l.TokenID] = struct{}{}
	s.legs = append(s.legs, l)
	s.cost += l.Price
	return true
}

// candidate is a priced basket before scoring.
type candidate struct {
	class     domain.OpportunityClass
	legs      []domain.Leg
	totalCost float64
	worst     float64
	best      float64
	depth     depthFunc
}

// score gates a candidate and, when it passes, enriches legs with spread
// data and returns the scored opportunity. Descriptive fields are left to the
// caller.
func (b *base) score(ctx context.Context, c candidate) *domain.EnhancedOpportunity {
	profit, pct := ProfitMetrics(c.totalCost, c.worst)
	if !b.valid(pct, c.totalCost) {
		return nil
	}

	legs := make([]domain.Leg, len(c.legs))
	copy(legs, c.legs)
	for i := range legs {
		s, ok := b.prices.Spread(ctx, legs[i].TokenID)
		if !ok {
			continue
		}
		legs[i].SpreadBps = s.SpreadBps
		legs[i].Depth = c.depth(s)
	}

	adjCost := AdjustForSpread(c.totalCost, legs, b.cfg.SpreadMultiplier)
	adjProfit, adjPct := ProfitMetrics(adjCost, c.worst)
	liq := LiquidityScore(legs)

	opp := &domain.EnhancedOpportunity{
		ID:                       uuid.NewString(),
		Class:                    c.class,
		Legs:                     legs,
		TotalCost:                c.totalCost,
		WorstCasePayoff:          c.worst,
		BestCasePayoff:           c.best,
		ExpectedProfit:           profit,
		ProfitPercentage:         pct,
		AdjustedCost:             domain.Float64Ptr(adjCost),
		AdjustedProfit:           domain.Float64Ptr(adjProfit),
		AdjustedProfitPercentage: domain.Float64Ptr(adjPct),
		RiskLevel:                domain.RiskLow,
		LiquidityScore:           domain.Float64Ptr(liq),
		IsPureArbitrage:          true,
		DiscoveredAt:             b.now().UTC(),
	}
	if d, ok := minLegDepth(legs); ok {
		opp.MaxSize = domain.Float64Ptr(d)
	}
	return opp
}

func (b *base) result(name string, start time.Time, scanned int, opps []*domain.EnhancedOpportunity) Result {
	end := b.now()
	return Result{
		Scanner:       name,
		Opportunities: opps,
		Duration:      end.Sub(start),
		Scanned:       scanned,
		Timestamp:     end.UTC(),
		PriceType:     b.cfg.PriceType,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
