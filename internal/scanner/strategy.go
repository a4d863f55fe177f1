package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// StrategyName is the registry name of StrategyScanner.
const StrategyName = "template_based"

// StrategyScanner prices curated strategies instead of raw markets.
type StrategyScanner struct {
	base
}

// NewStrategyScanner creates a StrategyScanner.
func NewStrategyScanner(prices PriceSource, cfg Config, logger *slog.Logger) *StrategyScanner {
	return &StrategyScanner{base: newBase(prices, cfg, logger, StrategyName)}
}

// Name implements Scanner.
func (s *StrategyScanner) Name() string { return StrategyName }

// Scan implements Scanner.
func (s *StrategyScanner) Scan(ctx context.Context, in Input) Result {
	start := s.now()
	var opps []*domain.EnhancedOpportunity
	for _, st := range in.Strategies {
		if ctx.Err() != nil {
			break
		}
		if opp := s.Evaluate(ctx, st); opp != nil {
			opps = append(opps, opp)
		}
	}
	return s.result(StrategyName, start, len(in.Strategies), opps)
}

// Evaluate prices a single strategy. It returns nil when any position cannot
// be priced or the basket fails the validity gate.
func (s *StrategyScanner) Evaluate(ctx context.Context, st *domain.Strategy) *domain.EnhancedOpportunity {
	switch st.Method {
	case domain.MethodAllNo:
		return s.evaluateAllNo(ctx, st)
	case domain.MethodBalanced, domain.MethodCustom:
		return s.evaluateBalanced(ctx, st)
	}
	s.logger.DebugContext(ctx, "skip strategy: unknown method",
		slog.String("strategy_id", st.ID), slog.String("method", string(st.Method)))
	return nil
}

func (s *StrategyScanner) evaluateAllNo(ctx context.Context, st *domain.Strategy) *domain.EnhancedOpportunity {
	set, ok := s.priceAll(ctx, st.Positions)
	if !ok {
		return nil
	}
	payoff := float64(len(set.legs) - 1)
	opp := s.score(ctx, candidate{
		class:     domain.ClassTemplateBased,
		legs:      set.legs,
		totalCost: set.cost,
		worst:     payoff,
		best:      payoff,
		depth:     askDepth,
	})
	if opp == nil {
		return nil
	}
	s.describe(opp, st, st.Positions, "all_no")
	return opp
}

func (s *StrategyScanner) evaluateBalanced(ctx context.Context, st *domain.Strategy) *domain.EnhancedOpportunity {
	positions := make([]domain.StrategyPosition, 0, len(st.SideA)+len(st.SideB))
	positions = append(positions, st.SideA...)
	positions = append(positions, st.SideB...)
	if len(positions) == 0 && st.Method == domain.MethodCustom {
		positions = st.Positions
	}
	set, ok := s.priceAll(ctx, positions)
	if !ok {
		return nil
	}
	worst, best := 1.0, 1.0
	if st.Logical != nil {
		worst, best = st.Logical.WorstCasePayoff, st.Logical.BestCasePayoff
	}
	opp := s.score(ctx, candidate{
		class:     domain.ClassTemplateBased,
		legs:      set.legs,
		totalCost: set.cost,
		worst:     worst,
		best:      best,
		depth:     askDepth,
	})
	if opp == nil {
		return nil
	}
	s.describe(opp, st, positions, string(st.Method))
	return opp
}

// priceAll prices every position; one miss voids the whole strategy.
func (s *StrategyScanner) priceAll(ctx context.Context, positions []domain.StrategyPosition) (legSet, bool) {
	tokens := make([]string, 0, len(positions))
	for _, p := range positions {
		tokens = append(tokens, p.TokenID)
	}
	prices := s.buyPrices(ctx, tokens)

	var set legSet
	for _, p := range positions {
		price, ok := prices[p.TokenID]
		if !ok {
			return legSet{}, false
		}
		set.add(domain.Leg{
			TokenID:      p.TokenID,
			Side:         p.Side,
			OutcomeLabel: p.OutcomeLabel,
			MarketID:     p.MarketID,
			Price:        price,
			PriceType:    s.cfg.PriceType,
			Size:         p.Size,
		})
	}
	return set, true
}

func (s *StrategyScanner) describe(opp *domain.EnhancedOpportunity, st *domain.Strategy, positions []domain.StrategyPosition, method string) {
	opp.StrategyID = st.ID
	opp.Name = st.Name
	opp.Desc = st.Subtitle
	if opp.Desc == "" {
		opp.Desc = fmt.Sprintf("%s strategy with %d positions", method, len(opp.Legs))
	}
	opp.RiskLevel = domain.RiskMedium
	if st.IsPureArbitrage() {
		opp.RiskLevel = domain.RiskLow
	}
	opp.IsPureArbitrage = st.IsPureArbitrage()
	scope := domain.Strategy{Positions: positions}
	opp.MarketIDs = scope.Markets()
	opp.EventIDs = scope.Events()
	opp.Tags = append(append([]string(nil), st.Tags...), method)
	opp.Topic = st.Topic
}
