package domain

import (
	"fmt"
	"time"
)

// LegRecord is the flat form of a Leg.
type LegRecord struct {
	TokenID      string    `json:"token_id"`
	Side         string    `json:"side"`
	OutcomeLabel string    `json:"outcome_label"`
	MarketID     string    `json:"market_id,omitempty"`
	Price        float64   `json:"price"`
	PriceType    PriceType `json:"price_type"`
}

// OpportunityRecord is the stable interchange shape of an opportunity used by
// persistence, the cache, the message bus and reports.
type OpportunityRecord struct {
	ID                       string      `json:"id"`
	OpportunityClass         string      `json:"opportunity_class"`
	StrategyID               *string     `json:"strategy_id"`
	Name                     string      `json:"name"`
	Description              string      `json:"description"`
	Legs                     []LegRecord `json:"legs"`
	TotalCost                float64     `json:"total_cost"`
	WorstCasePayoff          float64     `json:"worst_case_payoff"`
	BestCasePayoff           float64     `json:"best_case_payoff"`
	ExpectedProfit           float64     `json:"expected_profit"`
	ProfitPercentage         float64     `json:"profit_percentage"`
	AdjustedProfitPercentage *float64    `json:"adjusted_profit_percentage"`
	RiskLevel                string      `json:"risk_level"`
	MaxSize                  *float64    `json:"max_size"`
	LiquidityScore           *float64    `json:"liquidity_score,omitempty"`
	MarketIDs                []string    `json:"market_ids"`
	EventIDs                 []string    `json:"event_ids,omitempty"`
	Tags                     []string    `json:"tags,omitempty"`
	Topic                    string      `json:"topic,omitempty"`
	IsPureArbitrage          bool        `json:"is_pure_arbitrage"`
	DiscoveredAt             string      `json:"discovered_at"`
}

// ToRecord flattens the opportunity.
func (o *EnhancedOpportunity) ToRecord() OpportunityRecord {
	legs := make([]LegRecord, len(o.Legs))
	for i, l := range o.Legs {
		legs[i] = LegRecord{
			TokenID:      l.TokenID,
			Side:         string(l.Side),
			OutcomeLabel: l.OutcomeLabel,
			MarketID:     l.MarketID,
			Price:        l.Price,
			PriceType:    l.PriceType,
		}
	}
	var strategyID *string
	if o.StrategyID != "" {
		s := o.StrategyID
		strategyID = &s
	}
	return OpportunityRecord{
		ID:                       o.ID,
		OpportunityClass:         string(o.Class),
		StrategyID:               strategyID,
		Name:                     o.Name,
		Description:              o.Desc,
		Legs:                     legs,
		TotalCost:                o.TotalCost,
		WorstCasePayoff:          o.WorstCasePayoff,
		BestCasePayoff:           o.BestCasePayoff,
		ExpectedProfit:           o.ExpectedProfit,
		ProfitPercentage:         o.ProfitPercentage,
		AdjustedProfitPercentage: o.AdjustedProfitPercentage,
		RiskLevel:                string(o.RiskLevel),
		MaxSize:                  o.MaxSize,
		LiquidityScore:           o.LiquidityScore,
		MarketIDs:                o.MarketIDs,
		EventIDs:                 o.EventIDs,
		Tags:                     o.Tags,
		Topic:                    o.Topic,
		IsPureArbitrage:          o.IsPureArbitrage,
		DiscoveredAt:             o.DiscoveredAt.UTC().Format(time.RFC3339Nano),
	}
}

// FromRecord re-hydrates an opportunity from its flat form. Fields the record
// does not carry (spread, depth, adjusted cost) are left unset.
func FromRecord(r OpportunityRecord) (*EnhancedOpportunity, error) {
	discovered, err := time.Parse(time.RFC3339Nano, r.DiscoveredAt)
	if err != nil {
		return nil, fmt.Errorf("domain: opportunity %s: parse discovered_at %q: %w", r.ID, r.DiscoveredAt, err)
	}
	legs := make([]Leg, len(r.Legs))
	for i, l := range r.Legs {
		legs[i] = Leg{
			TokenID:      l.TokenID,
			Side:         PositionSide(l.Side),
			OutcomeLabel: l.OutcomeLabel,
			MarketID:     l.MarketID,
			Price:        l.Price,
			PriceType:    l.PriceType,
		}
	}
	opp := &EnhancedOpportunity{
		ID:                       r.ID,
		Class:                    OpportunityClass(r.OpportunityClass),
		Name:                     r.Name,
		Desc:                     r.Description,
		Legs:                     legs,
		TotalCost:                r.TotalCost,
		WorstCasePayoff:          r.WorstCasePayoff,
		BestCasePayoff:           r.BestCasePayoff,
		ExpectedProfit:           r.ExpectedProfit,
		ProfitPercentage:         r.ProfitPercentage,
		AdjustedProfitPercentage: r.AdjustedProfitPercentage,
		RiskLevel:                RiskLevel(r.RiskLevel),
		MaxSize:                  r.MaxSize,
		LiquidityScore:           r.LiquidityScore,
		MarketIDs:                r.MarketIDs,
		EventIDs:                 r.EventIDs,
		Tags:                     r.Tags,
		Topic:                    r.Topic,
		IsPureArbitrage:          r.IsPureArbitrage,
		DiscoveredAt:             discovered,
	}
	if r.StrategyID != nil {
		opp.StrategyID = *r.StrategyID
	}
	return opp, nil
}
