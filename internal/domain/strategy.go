package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// StrategyMethod is how a strategy's positions combine.
type StrategyMethod string

const (
	MethodAllNo    StrategyMethod = "all_no"   // NO on every mutually exclusive outcome
	MethodBalanced StrategyMethod = "balanced" // two complementary baskets A/B
	MethodCustom   StrategyMethod = "custom"
)

// StrategyType is the risk character of a strategy.
type StrategyType string

const (
	TypePureLogical   StrategyType = "pure_logical"
	TypeHighProbHedge StrategyType = "high_prob_hedge"
	TypeDirectional   StrategyType = "directional"
)

// StrategyPosition is one position of a curated strategy. Price and Size are
// optional hints; zero means unset.
type StrategyPosition struct {
	EventID      string
	EventSlug    string
	MarketID     string
	MarketSlug   string
	OutcomeLabel string
	OutcomeID    string
	TokenID      string
	Side         PositionSide
	Price        float64
	Size         float64
}

func (p StrategyPosition) String() string {
	return fmt.Sprintf("%s(%s) in %s", p.Side, p.OutcomeLabel, p.MarketSlug)
}

// Scenario is one outcome world of a logical spec and the payoff it yields.
type Scenario struct {
	Name   string
	Payoff float64
}

// LogicalSpec describes which positions pay in which outcome scenarios.
type LogicalSpec struct {
	Description     string
	Scenarios       []Scenario
	WorstCasePayoff float64
	BestCasePayoff  float64
}

// Strategy is a reusable combination of positions. It is replaced, never
// edited, once registered.
type Strategy struct {
	ID        string
	Name      string
	Subtitle  string
	Method    StrategyMethod
	Type      StrategyType
	Positions []StrategyPosition
	SideA     []StrategyPosition
	SideB     []StrategyPosition
	Logical   *LogicalSpec
	Tags      []string
	Topic     string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllPositions returns side A+B for balanced strategies, Positions otherwise.
func (s *Strategy) AllPositions() []StrategyPosition {
	if s.Method == MethodBalanced {
		out := make([]StrategyPosition, 0, len(s.SideA)+len(s.SideB))
		out = append(out, s.SideA...)
		return append(out, s.SideB...)
	}
	return s.Positions
}

// PositionCount returns len(AllPositions()).
func (s *Strategy) PositionCount() int { return len(s.AllPositions()) }

// Markets returns the sorted unique market ids the strategy touches.
func (s *Strategy) Markets() []string {
	return uniqueSorted(s.AllPositions(), func(p StrategyPosition) string { return p.MarketID })
}

// Events returns the sorted unique event ids the strategy touches.
func (s *Strategy) Events() []string {
	return uniqueSorted(s.AllPositions(), func(p StrategyPosition) string { return p.EventID })
}

// IsPureArbitrage reports whether the strategy is pure logical.
func (s *Strategy) IsPureArbitrage() bool { return s.Type == TypePureLogical }

func (s *Strategy) String() string {
	return fmt.Sprintf("Strategy(%s, method=%s, type=%s, positions=%d)", s.Name, s.Method, s.Type, s.PositionCount())
}

// Problems returns every consistency violation of the strategy.
func (s *Strategy) Problems() []string {
	var problems []string
	all := s.AllPositions()
	if len(all) == 0 {
		problems = append(problems, "Strategy must have at least one position")
	}
	switch s.Method {
	case MethodAllNo:
		for _, p := range all {
			if p.Side != SideNo {
				problems = append(problems, fmt.Sprintf("ALL_NO strategy should only have NO positions, found %s", p.Side))
			}
		}
	case MethodBalanced:
		if len(s.SideA) == 0 {
			problems = append(problems, "BALANCED strategy missing side_a_positions")
		}
		if len(s.SideB) == 0 {
			problems = append(problems, "BALANCED strategy missing side_b_positions")
		}
	}
	if s.Logical != nil && s.Logical.WorstCasePayoff > s.Logical.BestCasePayoff {
		problems = append(problems, "Worst case payoff cannot exceed best case payoff")
	}
	return problems
}

// Validate wraps Problems into a single ErrInvalidStrategy error.
func (s *Strategy) Validate() error {
	problems := s.Problems()
	if len(problems) == 0 {
		return nil
	}
	errs := make([]error, len(problems))
	for i, p := range problems {
		errs[i] = errors.New(p)
	}
	return fmt.Errorf("domain: strategy %s: %w: %w", s.ID, ErrInvalidStrategy, errors.Join(errs...))
}

func uniqueSorted(ps []StrategyPosition, key func(StrategyPosition) string) []string {
	seen := make(map[string]struct{}, len(ps))
	var out []string
	for _, p := range ps {
		k := key(p)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
