// Package pricing resolves token prices by semantic type on top of a book
// source and the fill history.
package pricing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// DefaultCacheTTL is how long a resolved price is reused.
const DefaultCacheTTL = 60 * time.Second

// batchConcurrency bounds the fan-out of Prices.
const batchConcurrency = 8

type cacheKey struct {
	token  string
	typ    domain.PriceType
	side   domain.OrderSide
	userID string
}

type cachedPrice struct {
	price float64
	at    time.Time
}

// Accessor resolves prices by type. Lookups fail soft: any upstream problem
// is logged at debug level and reported as unavailable.
type Accessor struct {
	books  domain.BookSource
	fills  domain.FillStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[cacheKey]cachedPrice
}

// Option customises an Accessor.
type Option func(*Accessor)

// WithFillStore enables ACTUAL prices.
func WithFillStore(fs domain.FillStore) Option {
	return func(a *Accessor) { a.fills = fs }
}

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(a *Accessor) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Accessor) { a.now = now }
}

// NewAccessor creates an Accessor over books.
func NewAccessor(books domain.BookSource, logger *slog.Logger, opts ...Option) *Accessor {
	a := &Accessor{
		books:  books,
		ttl:    DefaultCacheTTL,
		logger: logger.With(slog.String("component", "price_accessor")),
		now:    time.Now,
		cache:  make(map[cacheKey]cachedPrice),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Price returns the price of tokenID for the given type, or false when it
// cannot be resolved. ACTUAL prices bypass the cache in both directions.
func (a *Accessor) Price(ctx context.Context, tokenID string, pt domain.PriceType, side domain.OrderSide, userID string) (float64, bool) {
	key := cacheKey{token: tokenID, typ: pt, side: side, userID: userID}
	if pt != domain.PriceActual {
		if p, ok := a.cached(key); ok {
			return p, true
		}
	}

	price, err := a.fetch(ctx, tokenID, pt, userID)
	if err != nil {
		a.logger.DebugContext(ctx, "price unavailable",
			slog.String("token_id", tokenID),
			slog.String("price_type", string(pt)),
			slog.String("error", err.Error()),
		)
		return 0, false
	}

	if pt != domain.PriceActual {
		a.mu.Lock()
		a.cache[key] = cachedPrice{price: price, at: a.now()}
		a.mu.Unlock()
	}
	return price, true
}

func (a *Accessor) cached(key cacheKey) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.cache[key]
	if !ok || a.now().Sub(c.at) >= a.ttl {
		return 0, false
	}
	return c.price, true
}

func (a *Accessor) fetch(ctx context.Context, tokenID string, pt domain.PriceType, userID string) (float64, error) {
	switch pt {
	case domain.PriceAsk, domain.PriceBid, domain.PriceMid:
		book, err := a.books.GetOrderbook(ctx, tokenID, 1)
		if err != nil {
			return 0, err
		}
		return priceFromBook(book, pt)
	case domain.PriceLive:
		return a.books.GetLastTradePrice(ctx, tokenID)
	case domain.PriceActual:
		if a.fills == nil || userID == "" {
			return 0, domain.ErrPriceUnavailable
		}
		f, err := a.fills.LatestFill(ctx, userID, tokenID)
		if err != nil {
			return 0, err
		}
		return f.Price, nil
	}
	return 0, errors.New("pricing: unknown price type " + string(pt))
}

func priceFromBook(book domain.OrderbookSnapshot, pt domain.PriceType) (float64, error) {
	bid, hasBid := book.TopBid()
	ask, hasAsk := book.TopAsk()
	switch pt {
	case domain.PriceAsk:
		if hasAsk {
			return ask.Price, nil
		}
	case domain.PriceBid:
		if hasBid {
			return bid.Price, nil
		}
	case domain.PriceMid:
		if hasBid && hasAsk {
			return (bid.Price + ask.Price) / 2, nil
		}
	}
	return 0, domain.ErrPriceUnavailable
}

// Prices resolves many tokens concurrently. Tokens that cannot be priced are
// absent from the result; one failure never fails the batch.
func (a *Accessor) Prices(ctx context.Context, tokenIDs []string, pt domain.PriceType, side domain.OrderSide) map[string]float64 {
	var mu sync.Mutex
	out := make(map[string]float64, len(tokenIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for _, id := range tokenIDs {
		g.Go(func() error {
			if p, ok := a.Price(gctx, id, pt, side, ""); ok {
				mu.Lock()
				out[id] = p
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// PriceWithFallback tries each type in order and returns the first that
// resolves together with the type used.
func (a *Accessor) PriceWithFallback(ctx context.Context, tokenID string, preferred []domain.PriceType, side domain.OrderSide) (float64, domain.PriceType, bool) {
	for _, pt := range preferred {
		if p, ok := a.Price(ctx, tokenID, pt, side, ""); ok {
			return p, pt, true
		}
	}
	return 0, "", false
}

// Spread returns top-of-book spread metrics for tokenID.
func (a *Accessor) Spread(ctx context.Context, tokenID string) (domain.SpreadInfo, bool) {
	s, err := a.books.GetSpread(ctx, tokenID)
	if err != nil {
		a.logger.DebugContext(ctx, "spread unavailable",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
		return domain.SpreadInfo{}, false
	}
	return s, true
}

// ClearCache drops every cached price.
func (a *Accessor) ClearCache() {
	a.mu.Lock()
	a.cache = make(map[cacheKey]cachedPrice)
	a.mu.Unlock()
}
