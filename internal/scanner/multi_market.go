package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// MultiMarketName is the registry name of MultiMarket.
const MultiMarketName = "single_event_multi_market"

// DefaultOtherKeywords mark a catch-all market that makes an event's outcome
// space exhaustive.
var DefaultOtherKeywords = []string{"other", "another", "any other", "others", "anyone else", "someone else"}

// MultiMarket buys YES across every market of an event that contains a
// catch-all "other" market. One market must resolve YES, so the basket pays 1.
type MultiMarket struct {
	base
	keywords []string
}

// NewMultiMarket creates a MultiMarket scanner. A nil keywords slice selects
// DefaultOtherKeywords.
func NewMultiMarket(prices PriceSource, cfg Config, keywords []string, logger *slog.Logger) *MultiMarket {
	if keywords == nil {
		keywords = DefaultOtherKeywords
	}
	lower := make([]string, len(keywords))
	for i, k := range keywords {
		lower[i] = strings.ToLower(k)
	}
	return &MultiMarket{base: newBase(prices, cfg, logger, MultiMarketName), keywords: lower}
}

// Name implements Scanner.
func (s *MultiMarket) Name() string { return MultiMarketName }

// Scan implements Scanner.
func (s *MultiMarket) Scan(ctx context.Context, in Input) Result {
	start := s.now()
	var opps []*domain.EnhancedOpportunity
	for _, g := range groupBy(in.Markets, func(m domain.Market) string { return m.EventID }) {
		if ctx.Err() != nil {
			break
		}
		if opp := s.checkEvent(ctx, g.key, g.markets); opp != nil {
			opps = append(opps, opp)
		}
	}
	return s.result(MultiMarketName, start, len(in.Markets), opps)
}

// IsOtherMarket reports whether the market's question or outcome labels
// contain a catch-all keyword.
func (s *MultiMarket) IsOtherMarket(m domain.Market) bool {
	parts := make([]string, 0, len(m.Outcomes)+1)
	if m.Question != "" {
		parts = append(parts, m.Question)
	}
	for _, o := range m.Outcomes {
		if o.Label != "" {
			parts = append(parts, o.Label)
		}
	}
	text := strings.ToLower(strings.Join(parts, " "))
	for _, k := range s.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func (s *MultiMarket) checkEvent(ctx context.Context, eventID string, markets []domain.Market) *domain.EnhancedOpportunity {
	if len(markets) < 2 {
		return nil
	}
	hasOther := false
	for _, m := range markets {
		if s.IsOtherMarket(m) {
			hasOther = true
			break
		}
	}
	if !hasOther {
		return nil
	}

	tokens := make([]string, 0, len(markets))
	for _, m := range markets {
		if outcome, ok := m.YesOutcome(); ok && outcome.YesTokenID != "" {
			tokens = append(tokens, outcome.YesTokenID)
		}
	}
	prices := s.buyPrices(ctx, tokens)

	var set legSet
	var marketIDs []string
	for _, m := range markets {
		outcome, ok := m.YesOutcome()
		if !ok {
			continue
		}
		p, ok := prices[outcome.YesTokenID]
		if !ok {
			continue
		}
		if set.add(domain.Leg{
			TokenID: outcome.YesTokenID, Side: domain.SideYes, OutcomeLabel: outcome.Label,
			MarketID: m.ID, MarketQuestion: m.Question, Price: p, PriceType: s.cfg.PriceType,
		}) {
			marketIDs = append(marketIDs, m.ID)
		}
	}
	if len(set.legs) < 2 || set.cost >= s.cfg.MaxTotalPrice {
		return nil
	}

	opp := s.score(ctx, candidate{
		class:     domain.ClassSingleEventMultiMarket,
		legs:      set.legs,
		totalCost: set.cost,
		worst:     1.0,
		best:      1.0,
		depth:     twoSidedDepth,
	})
	if opp == nil {
		return nil
	}
	opp.Name = fmt.Sprintf("Event coverage arb (%d markets)", len(opp.Legs))
	opp.Desc = "Buy YES across all markets in the event, including the 'other' option, for guaranteed coverage."
	opp.MarketIDs = marketIDs
	opp.EventIDs = []string{eventID}
	opp.Tags = []string{"multi_market_event", "other_option"}
	opp.Topic = markets[0].Topic
	return opp
}
