package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// OpportunityClass groups opportunities by the scanner that found them.
type OpportunityClass string

const (
	ClassSingleCondition        OpportunityClass = "single_condition"
	ClassNegRiskRebalancing     OpportunityClass = "negrisk_rebalancing"
	ClassCombinatorial          OpportunityClass = "combinatorial"
	ClassSingleEventMultiMarket OpportunityClass = "single_event_multi_market"
	ClassTemplateBased          OpportunityClass = "template_based"
)

// RiskLevel is the residual risk of an opportunity.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// PositionSide is the outcome side a leg buys.
type PositionSide string

const (
	SideYes PositionSide = "YES"
	SideNo  PositionSide = "NO"
)

// Leg is one tradable position within an opportunity. Size, SpreadBps and
// Depth are zero when unknown.
type Leg struct {
	TokenID        string
	Side           PositionSide
	OutcomeLabel   string
	MarketID       string
	MarketQuestion string
	Price          float64
	PriceType      PriceType
	Size           float64
	SpreadBps      float64
	Depth          float64
}

// EnhancedOpportunity is a scored arbitrage candidate. Scanners build it once;
// downstream consumers only read it.
type EnhancedOpportunity struct {
	ID         string
	StrategyID string
	Class      OpportunityClass
	Name       string
	Desc       string

	Legs []Leg

	TotalCost        float64
	WorstCasePayoff  float64
	BestCasePayoff   float64
	ExpectedProfit   float64
	ProfitPercentage float64

	AdjustedCost             *float64
	AdjustedProfit           *float64
	AdjustedProfitPercentage *float64

	RiskLevel     RiskLevel
	RuleRiskNotes []string

	MaxSize        *float64
	LiquidityScore *float64

	MarketIDs []string
	EventIDs  []string

	Tags            []string
	Topic           string
	IsPureArbitrage bool

	DiscoveredAt time.Time
	ExpiresAt    *time.Time
}

// ROI is the profit percentage.
func (o *EnhancedOpportunity) ROI() float64 { return o.ProfitPercentage }

// AdjustedROI is the spread-adjusted profit percentage, if computed.
func (o *EnhancedOpportunity) AdjustedROI() *float64 { return o.AdjustedProfitPercentage }

// LegCount returns the number of legs.
func (o *EnhancedOpportunity) LegCount() int { return len(o.Legs) }

// Markets returns the unique market ids, in first-seen order.
func (o *EnhancedOpportunity) Markets() []string {
	seen := make(map[string]struct{}, len(o.MarketIDs))
	out := make([]string, 0, len(o.MarketIDs))
	for _, id := range o.MarketIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// TokenIDs returns the leg token ids in leg order.
func (o *EnhancedOpportunity) TokenIDs() []string {
	ids := make([]string, len(o.Legs))
	for i, l := range o.Legs {
		ids[i] = l.TokenID
	}
	return ids
}

// IsHighQuality reports whether the opportunity clears a profit floor, a
// liquidity floor (when max size is known) and is not high risk.
func (o *EnhancedOpportunity) IsHighQuality(minProfit, minLiquidity float64) bool {
	profitOK := o.ProfitPercentage >= minProfit
	liquidityOK := o.MaxSize == nil || *o.MaxSize >= minLiquidity
	return profitOK && liquidityOK && o.RiskLevel != RiskHigh
}

// Signature identifies the same trade across scan passes: class plus the
// sorted leg tokens.
func (o *EnhancedOpportunity) Signature() string {
	ids := o.TokenIDs()
	sort.Strings(ids)
	return string(o.Class) + ":" + strings.Join(ids, ",")
}

func (o *EnhancedOpportunity) String() string {
	return fmt.Sprintf("EnhancedOpportunity(%s, profit=%.2f%%, legs=%d)", o.Class, o.ProfitPercentage, len(o.Legs))
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }
