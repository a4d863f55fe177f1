// Package domaintest provides in-memory implementations of domain ports for
// tests.
package domaintest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Books is an in-memory domain.BookSource and domain.BookWriter. It counts
// orderbook fetches per token so tests can assert on caching.
type Books struct {
	mu     sync.Mutex
	books  map[string]domain.OrderbookSnapshot
	trades map[string]float64
	errs   map[string]error
	calls  map[string]int
}

// NewBooks returns an empty Books.
func NewBooks() *Books {
	return &Books{
		books:  make(map[string]domain.OrderbookSnapshot),
		trades: make(map[string]float64),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

// MakeBook builds a one-level book. A zero price leaves that side empty.
func MakeBook(tokenID string, bid, ask, size float64) domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{AssetID: tokenID, Timestamp: time.Now()}
	if bid > 0 {
		snap.Bids = []domain.PriceLevel{{Price: bid, Size: size}}
		snap.BestBid = bid
	}
	if ask > 0 {
		snap.Asks = []domain.PriceLevel{{Price: ask, Size: size}}
		snap.BestAsk = ask
	}
	if bid > 0 && ask > 0 {
		snap.MidPrice = (bid + ask) / 2
	}
	return snap
}

// SetBook stores a one-level book for tokenID.
func (b *Books) SetBook(tokenID string, bid, ask, size float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.books[tokenID] = MakeBook(tokenID, bid, ask, size)
}

// SetAsk stores a book with only an ask side.
func (b *Books) SetAsk(tokenID string, ask, size float64) {
	b.SetBook(tokenID, 0, ask, size)
}

// SetLastTradePrice stores a last trade.
func (b *Books) SetLastTradePrice(tokenID string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trades[tokenID] = price
}

// FailWith makes every lookup of tokenID return err.
func (b *Books) FailWith(tokenID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[tokenID] = err
}

// Calls returns how many orderbook fetches tokenID has seen.
func (b *Books) Calls(tokenID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[tokenID]
}

// GetOrderbook implements domain.BookSource.
func (b *Books) GetOrderbook(_ context.Context, tokenID string, _ int) (domain.OrderbookSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[tokenID]++
	if err := b.errs[tokenID]; err != nil {
		return domain.OrderbookSnapshot{}, err
	}
	book, ok := b.books[tokenID]
	if !ok {
		return domain.OrderbookSnapshot{}, fmt.Errorf("book %s: %w", tokenID, domain.ErrNotFound)
	}
	return book, nil
}

// GetLastTradePrice implements domain.BookSource.
func (b *Books) GetLastTradePrice(_ context.Context, tokenID string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errs[tokenID]; err != nil {
		return 0, err
	}
	p, ok := b.trades[tokenID]
	if !ok {
		return 0, fmt.Errorf("last trade %s: %w", tokenID, domain.ErrNotFound)
	}
	return p, nil
}

// GetSpread implements domain.BookSource.
func (b *Books) GetSpread(ctx context.Context, tokenID string) (domain.SpreadInfo, error) {
	book, err := b.GetOrderbook(ctx, tokenID, 1)
	if err != nil {
		return domain.SpreadInfo{}, err
	}
	info, ok := domain.SpreadFromSnapshot(book)
	if !ok {
		return domain.SpreadInfo{}, domain.ErrPriceUnavailable
	}
	return info, nil
}

// SetSnapshot implements domain.BookWriter.
func (b *Books) SetSnapshot(_ context.Context, snap domain.OrderbookSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.books[snap.AssetID] = snap
	return nil
}

// SetLastTrade implements domain.BookWriter.
func (b *Books) SetLastTrade(_ context.Context, tokenID string, price float64, _ time.Time) error {
	b.SetLastTradePrice(tokenID, price)
	return nil
}

var (
	_ domain.BookSource = (*Books)(nil)
	_ domain.BookWriter = (*Books)(nil)
)

// Fills is an in-memory domain.FillStore.
type Fills struct {
	mu    sync.Mutex
	fills []domain.Fill
}

// InsertFill implements domain.FillStore.
func (f *Fills) InsertFill(_ context.Context, fill domain.Fill) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fills = append(f.fills, fill)
	return nil
}

// LatestFill implements domain.FillStore.
func (f *Fills) LatestFill(_ context.Context, userID, tokenID string) (domain.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best domain.Fill
	found := false
	for _, fill := range f.fills {
		if fill.UserID != userID || fill.TokenID != tokenID {
			continue
		}
		if !found || fill.ExecutedAt.After(best.ExecutedAt) {
			best, found = fill, true
		}
	}
	if !found {
		return domain.Fill{}, domain.ErrNotFound
	}
	return best, nil
}

var _ domain.FillStore = (*Fills)(nil)
