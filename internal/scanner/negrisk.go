package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// NegRiskName is the registry name of NegRisk.
const NegRiskName = "negrisk_rebalancing"

// NegRisk buys YES on every member of a neg-risk group. Exactly one member
// resolves true, so the basket pays 1.
type NegRisk struct {
	base
}

// NewNegRisk creates a NegRisk scanner.
func NewNegRisk(prices PriceSource, cfg Config, logger *slog.Logger) *NegRisk {
	return &NegRisk{base: newBase(prices, cfg, logger, NegRiskName)}
}

// Name implements Scanner.
func (s *NegRisk) Name() string { return NegRiskName }

// Scan implements Scanner.
func (s *NegRisk) Scan(ctx context.Context, in Input) Result {
	start := s.now()
	var opps []*domain.EnhancedOpportunity
	for _, g := range groupBy(in.Markets, func(m domain.Market) string {
		if !m.IsNegRisk {
			return ""
		}
		return m.NegRiskID
	}) {
		if ctx.Err() != nil {
			break
		}
		if len(g.markets) < 2 {
			continue
		}
		if opp := s.checkGroup(ctx, g.key, g.markets); opp != nil {
			opps = append(opps, opp)
		}
	}
	return s.result(NegRiskName, start, len(in.Markets), opps)
}

func (s *NegRisk) checkGroup(ctx context.Context, negRiskID string, markets []domain.Market) *domain.EnhancedOpportunity {
	tokens := make([]string, 0, len(markets))
	for _, m := range markets {
		if len(m.Outcomes) > 0 && m.Outcomes[0].YesTokenID != "" {
			tokens = append(tokens, m.Outcomes[0].YesTokenID)
		}
	}
	prices := s.buyPrices(ctx, tokens)

	var set legSet
	var marketIDs, eventIDs []string
	seenEvents := make(map[string]struct{})

	for _, m := range markets {
		if len(m.Outcomes) == 0 {
			continue
		}
		outcome := m.Outcomes[0]
		p, ok := prices[outcome.YesTokenID]
		if !ok {
			continue
		}
		if !set.add(domain.Leg{
			TokenID: outcome.YesTokenID, Side: domain.SideYes, OutcomeLabel: outcome.Label,
			MarketID: m.ID, MarketQuestion: m.Question, Price: p, PriceType: s.cfg.PriceType,
		}) {
			continue
		}
		marketIDs = append(marketIDs, m.ID)
		if m.EventID != "" {
			if _, ok := seenEvents[m.EventID]; !ok {
				seenEvents[m.EventID] = struct{}{}
				eventIDs = append(eventIDs, m.EventID)
			}
		}
	}
	if len(set.legs) < 2 || set.cost >= s.cfg.MaxTotalPrice {
		return nil
	}

	opp := s.score(ctx, candidate{
		class:     domain.ClassNegRiskRebalancing,
		legs:      set.legs,
		totalCost: set.cost,
		worst:     1.0,
		best:      1.0,
		depth:     askDepth,
	})
	if opp == nil {
		return nil
	}
	opp.Name = fmt.Sprintf("NegRisk Rebalancing: %d outcomes", len(opp.Legs))
	opp.Desc = fmt.Sprintf("Buy YES on all %d mutually exclusive outcomes for guaranteed profit. Total cost: %.4f", len(opp.Legs), opp.TotalCost)
	opp.MarketIDs = marketIDs
	opp.EventIDs = eventIDs
	opp.Tags = []string{"negrisk", "neg_risk_id:" + negRiskID}
	opp.Topic = markets[0].Topic
	return opp
}

type marketGroup struct {
	key     string
	markets []domain.Market
}

// groupBy groups markets by a non-empty key, preserving first-seen order.
func groupBy(markets []domain.Market, key func(domain.Market) string) []marketGroup {
	idx := make(map[string]int)
	var groups []marketGroup
	for _, m := range markets {
		k := key(m)
		if k == "" {
			continue
		}
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			groups = append(groups, marketGroup{key: k})
		}
		groups[i].markets = append(groups[i].markets, m)
	}
	return groups
}
