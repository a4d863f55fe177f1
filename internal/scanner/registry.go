package scanner

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds named scanners for selection by config.
type Registry struct {
	scanners map[string]Scanner
	mu       sync.RWMutex
}

// NewRegistry returns an empty registry. Call Register to add scanners.
func NewRegistry() *Registry {
	return &Registry{scanners: make(map[string]Scanner)}
}

// NewDefaultRegistry registers the four built-in scanners.
func NewDefaultRegistry(prices PriceSource, cfg Config, otherKeywords []string, logger *slog.Logger) *Registry {
	r := NewRegistry()
	r.Register(NewSingleCondition(prices, cfg, logger))
	r.Register(NewNegRisk(prices, cfg, logger))
	r.Register(NewMultiMarket(prices, cfg, otherKeywords, logger))
	r.Register(NewStrategyScanner(prices, cfg, logger))
	return r
}

// Register adds a scanner under its own name.
func (r *Registry) Register(s Scanner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanners[s.Name()] = s
}

// Get returns the scanner by name, or an error if not found.
func (r *Registry) Get(name string) (Scanner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scanners[name]
	if !ok {
		return nil, fmt.Errorf("scanner %q not found", name)
	}
	return s, nil
}

// Select resolves names in order. An empty list selects every scanner.
func (r *Registry) Select(names []string) ([]Scanner, error) {
	if len(names) == 0 {
		names = r.List()
	}
	out := make([]Scanner, 0, len(names))
	for _, n := range names {
		s, err := r.Get(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// List returns all registered scanner names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scanners))
	for n := range r.scanners {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
