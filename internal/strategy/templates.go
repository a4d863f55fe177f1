package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Meta carries the descriptive fields shared by every template.
type Meta struct {
	Topic string
	Notes string
	Tags  []string
}

// NewAllNo builds a Dutch book on mutually exclusive NOs. Exactly one outcome
// occurs, so n-1 legs pay 1 and one leg pays 0. Every position is forced to
// the NO side.
func NewAllNo(name, subtitle string, positions []domain.StrategyPosition, meta Meta) *domain.Strategy {
	ps := make([]domain.StrategyPosition, len(positions))
	for i, p := range positions {
		p.Side = domain.SideNo
		ps[i] = p
	}

	n := len(ps)
	payoff := float64(n - 1)
	scenarios := make([]domain.Scenario, n)
	for i, p := range ps {
		label := p.OutcomeLabel
		if label == "" {
			label = fmt.Sprintf("outcome %d", i)
		}
		scenarios[i] = domain.Scenario{Name: label + " occurs", Payoff: payoff}
	}

	return newStrategy(name, subtitle, domain.MethodAllNo, domain.TypePureLogical, meta, func(s *domain.Strategy) {
		s.Positions = ps
		s.Logical = &domain.LogicalSpec{
			Description:     fmt.Sprintf("Buy NO on %d mutually exclusive outcomes. Exactly one outcome occurs, so %d legs win and 1 leg loses.", n, n-1),
			Scenarios:       scenarios,
			WorstCasePayoff: payoff,
			BestCasePayoff:  payoff,
		}
	})
}

// NewBalanced builds a two-basket strategy. Positions without a side default
// to YES; a zero worst/best pair defaults to 1/1.
func NewBalanced(name, subtitle string, sideA, sideB []domain.StrategyPosition, typ domain.StrategyType, worst, best float64, meta Meta) *domain.Strategy {
	if worst == 0 && best == 0 {
		worst, best = 1, 1
	}
	if typ == "" {
		typ = domain.TypePureLogical
	}
	kind := "Hedge"
	if typ == domain.TypePureLogical {
		kind = "Pure arbitrage"
	}
	a, b := defaultYes(sideA), defaultYes(sideB)
	return newStrategy(name, subtitle, domain.MethodBalanced, typ, meta, func(s *domain.Strategy) {
		s.SideA = a
		s.SideB = b
		s.Logical = &domain.LogicalSpec{
			Description:     fmt.Sprintf("Balanced strategy with %d positions on side A and %d on side B. %s: at least one position wins in all scenarios.", len(a), len(b), kind),
			WorstCasePayoff: worst,
			BestCasePayoff:  best,
		}
	})
}

// NewCustom builds a strategy from arbitrary positions. logical may be nil.
func NewCustom(name, subtitle string, positions []domain.StrategyPosition, typ domain.StrategyType, logical *domain.LogicalSpec, meta Meta) *domain.Strategy {
	if typ == "" {
		typ = domain.TypeDirectional
	}
	ps := defaultYes(positions)
	return newStrategy(name, subtitle, domain.MethodCustom, typ, meta, func(s *domain.Strategy) {
		s.Positions = ps
		s.Logical = logical
	})
}

func newStrategy(name, subtitle string, method domain.StrategyMethod, typ domain.StrategyType, meta Meta, fill func(*domain.Strategy)) *domain.Strategy {
	now := time.Now().UTC()
	s := &domain.Strategy{
		ID:        uuid.NewString(),
		Name:      name,
		Subtitle:  subtitle,
		Method:    method,
		Type:      typ,
		Tags:      append([]string(nil), meta.Tags...),
		Topic:     meta.Topic,
		Notes:     meta.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	fill(s)
	return s
}

func defaultYes(positions []domain.StrategyPosition) []domain.StrategyPosition {
	out := make([]domain.StrategyPosition, len(positions))
	for i, p := range positions {
		if p.Side == "" {
			p.Side = domain.SideYes
		}
		out[i] = p
	}
	return out
}
