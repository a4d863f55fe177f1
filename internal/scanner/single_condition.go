package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// SingleConditionName is the registry name of SingleCondition.
const SingleConditionName = "single_condition"

// SingleCondition finds YES/NO Dutch books in binary markets: when
// price(YES)+price(NO) < 1 buying both pays exactly 1.
type SingleCondition struct {
	base
}

// NewSingleCondition creates a SingleCondition scanner.
func NewSingleCondition(prices PriceSource, cfg Config, logger *slog.Logger) *SingleCondition {
	return &SingleCondition{base: newBase(prices, cfg, logger, SingleConditionName)}
}

// Name implements Scanner.
func (s *SingleCondition) Name() string { return SingleConditionName }

// Scan implements Scanner.
func (s *SingleCondition) Scan(ctx context.Context, in Input) Result {
	start := s.now()
	var opps []*domain.EnhancedOpportunity
	for _, m := range in.Markets {
		if ctx.Err() != nil {
			break
		}
		if !m.IsBinary() {
			continue
		}
		if opp := s.checkMarket(ctx, m); opp != nil {
			opps = append(opps, opp)
		}
	}
	return s.result(SingleConditionName, start, len(in.Markets), opps)
}

// checkMarket prices the YES/NO pair at the configured price type. Legs are
// bought, so only the ask side is a Dutch book: the bid pair always sums
// lower than the asks and would report a cost nobody can trade at.
func (s *SingleCondition) checkMarket(ctx context.Context, m domain.Market) *domain.EnhancedOpportunity {
	yes, no := m.Outcomes[1], m.Outcomes[0]
	if domain.IsYesLabel(m.Outcomes[0].Label) {
		yes, no = m.Outcomes[0], m.Outcomes[1]
	}
	yesToken := yes.YesTokenID
	noToken := no.YesTokenID
	if noToken == "" || noToken == yesToken {
		noToken = yes.NoTokenID
	}
	if yesToken == "" || noToken == "" || yesToken == noToken {
		s.logger.DebugContext(ctx, "skip market: unusable tokens", slog.String("market_id", m.ID))
		return nil
	}

	pt := s.cfg.PriceType
	yp, ok := s.prices.Price(ctx, yesToken, pt, domain.OrderSideBuy, "")
	if !ok {
		return nil
	}
	np, ok := s.prices.Price(ctx, noToken, pt, domain.OrderSideBuy, "")
	if !ok {
		return nil
	}
	if yp+np >= s.cfg.MaxTotalPrice {
		return nil
	}

	var set legSet
	set.add(domain.Leg{
		TokenID: yesToken, Side: domain.SideYes, OutcomeLabel: labelOr(yes.Label, "Yes"),
		MarketID: m.ID, MarketQuestion: m.Question, Price: yp, PriceType: pt,
	})
	set.add(domain.Leg{
		TokenID: noToken, Side: domain.SideNo, OutcomeLabel: labelOr(no.Label, "No"),
		MarketID: m.ID, MarketQuestion: m.Question, Price: np, PriceType: pt,
	})
	opp := s.score(ctx, candidate{
		class:     domain.ClassSingleCondition,
		legs:      set.legs,
		totalCost: set.cost,
		worst:     1.0,
		best:      1.0,
		depth:     twoSidedDepth,
	})
	if opp == nil {
		return nil
	}

	opp.Name = "YES/NO Arbitrage: " + truncate(m.Question, 50)
	opp.Desc = fmt.Sprintf("Buy YES at %.4f and NO at %.4f for guaranteed profit", yp, np)
	opp.MarketIDs = []string{m.ID}
	if m.EventID != "" {
		opp.EventIDs = []string{m.EventID}
	}
	opp.Topic = m.Topic
	return opp
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}
