// Package strategy holds curated multi-market strategies: the in-memory
// registry the strategy scanner reads from, template constructors and the
// TOML strategies-file loader.
package strategy

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Info is the summary view of a registered strategy.
type Info struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Method        string   `json:"method"`
	Type          string   `json:"type"`
	PositionCount int      `json:"position_count"`
	Markets       []string `json:"markets"`
	Events        []string `json:"events"`
}

// Summary is the exported form of the whole registry.
type Summary struct {
	Strategies []Info `json:"strategies"`
	TotalCount int    `json:"total_count"`
}

// Registry maps strategy ids to strategies. It is safe for concurrent use.
type Registry struct {
	strategies map[string]*domain.Strategy
	mu         sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]*domain.Strategy),
	}
}

// Add validates the strategy and stores it under its id, replacing any
// strategy with the same id.
func (r *Registry) Add(s *domain.Strategy) error {
	if s == nil {
		return fmt.Errorf("strategy: add: nil strategy: %w", domain.ErrInvalidStrategy)
	}
	if s.ID == "" {
		return fmt.Errorf("strategy: add %q: missing id: %w", s.Name, domain.ErrInvalidStrategy)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("strategy: add: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.ID] = s
	return nil
}

// Remove deletes a strategy. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.strategies, id)
}

// Get retrieves a strategy by id.
func (r *Registry) Get(id string) (*domain.Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

// All returns every strategy ordered by id.
func (r *Registry) All() []*domain.Strategy {
	return r.filter(func(*domain.Strategy) bool { return true })
}

// Count returns the number of registered strategies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}

// Clear removes every strategy.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.strategies)
}

func (r *Registry) ByMethod(m domain.StrategyMethod) []*domain.Strategy {
	return r.filter(func(s *domain.Strategy) bool { return s.Method == m })
}

func (r *Registry) ByType(t domain.StrategyType) []*domain.Strategy {
	return r.filter(func(s *domain.Strategy) bool { return s.Type == t })
}

func (r *Registry) ByTopic(topic string) []*domain.Strategy {
	return r.filter(func(s *domain.Strategy) bool { return s.Topic == topic })
}

func (r *Registry) ByTag(tag string) []*domain.Strategy {
	return r.filter(func(s *domain.Strategy) bool { return slices.Contains(s.Tags, tag) })
}

// ByMarket returns strategies with at least one position in the market.
func (r *Registry) ByMarket(marketID string) []*domain.Strategy {
	return r.filter(func(s *domain.Strategy) bool { return slices.Contains(s.Markets(), marketID) })
}

// ByEvent returns strategies with at least one position in the event.
func (r *Registry) ByEvent(eventID string) []*domain.Strategy {
	return r.filter(func(s *domain.Strategy) bool { return slices.Contains(s.Events(), eventID) })
}

// PureArbitrage returns the pure-logical strategies.
func (r *Registry) PureArbitrage() []*domain.Strategy {
	return r.ByType(domain.TypePureLogical)
}

// Summary exports the registry for status output.
func (r *Registry) Summary() Summary {
	all := r.All()
	out := Summary{Strategies: make([]Info, 0, len(all)), TotalCount: len(all)}
	for _, s := range all {
		out.Strategies = append(out.Strategies, Info{
			ID:            s.ID,
			Name:          s.Name,
			Method:        string(s.Method),
			Type:          string(s.Type),
			PositionCount: s.PositionCount(),
			Markets:       s.Markets(),
			Events:        s.Events(),
		})
	}
	return out
}

func (r *Registry) filter(keep func(*domain.Strategy) bool) []*domain.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Strategy
	for _, s := range r.strategies {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
