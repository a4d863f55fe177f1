package strategy

import (
	"errors"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// fileFormat mirrors the strategies TOML file:
//
//	[[strategy]]
//	name = "Fed decision NO basket"
//	method = "all_no"
//	[[strategy.positions]]
//	market_id = "..."
//	token_id = "..."
type fileFormat struct {
	Strategies []strategyEntry `toml:"strategy"`
}

type strategyEntry struct {
	ID              string          `toml:"id"`
	Name            string          `toml:"name"`
	Subtitle        string          `toml:"subtitle"`
	Method          string          `toml:"method"`
	Type            string          `toml:"type"`
	Topic           string          `toml:"topic"`
	Notes           string          `toml:"notes"`
	Tags            []string        `toml:"tags"`
	WorstCasePayoff float64         `toml:"worst_case_payoff"`
	BestCasePayoff  float64         `toml:"best_case_payoff"`
	Positions       []positionEntry `toml:"positions"`
	SideA           []positionEntry `toml:"side_a"`
	SideB           []positionEntry `toml:"side_b"`
}

type positionEntry struct {
	EventID      string  `toml:"event_id"`
	EventSlug    string  `toml:"event_slug"`
	MarketID     string  `toml:"market_id"`
	MarketSlug   string  `toml:"market_slug"`
	OutcomeLabel string  `toml:"outcome_label"`
	OutcomeID    string  `toml:"outcome_id"`
	TokenID      string  `toml:"token_id"`
	Side         string  `toml:"side"`
	Price        float64 `toml:"price"`
	Size         float64 `toml:"size"`
}

// LoadFile reads strategies from a TOML file.
func LoadFile(path string) ([]*domain.Strategy, error) {
	var f fileFormat
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("strategy: decode %s: %w", path, err)
	}
	return build(f)
}

// Load reads strategies from TOML in r.
func Load(r io.Reader) ([]*domain.Strategy, error) {
	var f fileFormat
	if _, err := toml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("strategy: decode: %w", err)
	}
	return build(f)
}

// LoadInto loads path and adds every strategy to reg. It returns the number
// added; invalid strategies are reported together and skipped.
func LoadInto(reg *Registry, path string) (int, error) {
	strategies, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	var errs []error
	added := 0
	for _, s := range strategies {
		if err := reg.Add(s); err != nil {
			errs = append(errs, err)
			continue
		}
		added++
	}
	return added, errors.Join(errs...)
}

func build(f fileFormat) ([]*domain.Strategy, error) {
	out := make([]*domain.Strategy, 0, len(f.Strategies))
	for i, e := range f.Strategies {
		s, err := e.toStrategy()
		if err != nil {
			return nil, fmt.Errorf("strategy: entry %d (%q): %w", i, e.Name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (e strategyEntry) toStrategy() (*domain.Strategy, error) {
	meta := Meta{Topic: e.Topic, Notes: e.Notes, Tags: e.Tags}
	typ := domain.StrategyType(e.Type)

	var s *domain.Strategy
	switch domain.StrategyMethod(e.Method) {
	case domain.MethodAllNo:
		s = NewAllNo(e.Name, e.Subtitle, positions(e.Positions), meta)
		if typ != "" {
			s.Type = typ
		}
	case domain.MethodBalanced:
		s = NewBalanced(e.Name, e.Subtitle, positions(e.SideA), positions(e.SideB), typ, e.WorstCasePayoff, e.BestCasePayoff, meta)
	case domain.MethodCustom:
		var logical *domain.LogicalSpec
		if e.WorstCasePayoff != 0 || e.BestCasePayoff != 0 {
			logical = &domain.LogicalSpec{WorstCasePayoff: e.WorstCasePayoff, BestCasePayoff: e.BestCasePayoff}
		}
		s = NewCustom(e.Name, e.Subtitle, positions(e.Positions), typ, logical, meta)
		s.SideA = positions(e.SideA)
		s.SideB = positions(e.SideB)
	default:
		return nil, fmt.Errorf("unknown method %q: %w", e.Method, domain.ErrInvalidStrategy)
	}
	if e.ID != "" {
		s.ID = e.ID
	}
	return s, nil
}

func positions(entries []positionEntry) []domain.StrategyPosition {
	out := make([]domain.StrategyPosition, len(entries))
	for i, p := range entries {
		out[i] = domain.StrategyPosition{
			EventID:      p.EventID,
			EventSlug:    p.EventSlug,
			MarketID:     p.MarketID,
			MarketSlug:   p.MarketSlug,
			OutcomeLabel: p.OutcomeLabel,
			OutcomeID:    p.OutcomeID,
			TokenID:      p.TokenID,
			Side:         domain.PositionSide(p.Side),
			Price:        p.Price,
			Size:         p.Size,
		}
	}
	return out
}
