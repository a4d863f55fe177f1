// Package scanner turns market and strategy descriptors into scored
// arbitrage opportunities.
package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// PriceSource is what scanners need from the price accessor.
type PriceSource interface {
	Price(ctx context.Context, tokenID string, pt domain.PriceType, side domain.OrderSide, userID string) (float64, bool)
	Prices(ctx context.Context, tokenIDs []string, pt domain.PriceType, side domain.OrderSide) map[string]float64
	Spread(ctx context.Context, tokenID string) (domain.SpreadInfo, bool)
}

// Input is one scan pass worth of descriptors. Market scanners read Markets,
// the strategy scanner reads Strategies.
type Input struct {
	Markets    []domain.Market
	Strategies []*domain.Strategy
}

// Scanner is implemented by each scanning algorithm.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, in Input) Result
}

// Result is the outcome of one scanner over one Input. A scan always returns
// a Result, possibly empty.
type Result struct {
	Scanner       string
	Opportunities []*domain.EnhancedOpportunity
	Duration      time.Duration
	Scanned       int
	Timestamp     time.Time
	PriceType     domain.PriceType
}

// Count returns the number of opportunities.
func (r Result) Count() int { return len(r.Opportunities) }

// FilterByClass returns the opportunities of one class.
func (r Result) FilterByClass(c domain.OpportunityClass) []*domain.EnhancedOpportunity {
	var out []*domain.EnhancedOpportunity
	for _, o := range r.Opportunities {
		if o.Class == c {
			out = append(out, o)
		}
	}
	return out
}

// Top returns up to n opportunities by profit percentage, best first.
func (r Result) Top(n int) []*domain.EnhancedOpportunity {
	return TopByProfit(r.Opportunities, n)
}

// TopByProfit sorts a copy of opps by profit percentage descending and
// returns the first n (all when n <= 0).
func TopByProfit(opps []*domain.EnhancedOpportunity, n int) []*domain.EnhancedOpportunity {
	out := make([]*domain.EnhancedOpportunity, len(opps))
	copy(out, opps)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProfitPercentage > out[j].ProfitPercentage
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Merge concatenates the opportunities of several results in order.
func Merge(results ...Result) []*domain.EnhancedOpportunity {
	var out []*domain.EnhancedOpportunity
	for _, r := range results {
		out = append(out, r.Opportunities...)
	}
	return out
}
