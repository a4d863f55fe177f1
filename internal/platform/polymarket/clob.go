package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ClobClient reads public book data from the Polymarket CLOB REST API.
type ClobClient struct {
	rest        restClient
	concurrency int
}

// NewClobClient creates a CLOB client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// ratePerSec <= 0 disables client-side rate limiting.
func NewClobClient(baseURL string, ratePerSec float64, burst int) *ClobClient {
	return &ClobClient{
		rest:        newRESTClient(baseURL, ratePerSec, burst),
		concurrency: 8,
	}
}

// GetOrderbook implements domain.BookSource.
func (c *ClobClient) GetOrderbook(ctx context.Context, tokenID string, depth int) (domain.OrderbookSnapshot, error) {
	var book APIBook
	if err := c.rest.getJSON(ctx, "/book?token_id="+url.QueryEscape(tokenID), &book); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}
	if book.AssetID == "" {
		book.AssetID = tokenID
	}
	return book.ToDomainSnapshot(depth), nil
}

// GetLastTradePrice implements domain.BookSource.
func (c *ClobClient) GetLastTradePrice(ctx context.Context, tokenID string) (float64, error) {
	var lt APILastTrade
	if err := c.rest.getJSON(ctx, "/last-trade-price?token_id="+url.QueryEscape(tokenID), &lt); err != nil {
		return 0, fmt.Errorf("polymarket/clob: last trade %s: %w", tokenID, err)
	}
	p, err := strconv.ParseFloat(lt.Price, 64)
	if err != nil || p <= 0 {
		return 0, fmt.Errorf("polymarket/clob: last trade %s: %q: %w", tokenID, lt.Price, domain.ErrPriceUnavailable)
	}
	return p, nil
}

// GetSpread implements domain.BookSource.
func (c *ClobClient) GetSpread(ctx context.Context, tokenID string) (domain.SpreadInfo, error) {
	book, err := c.GetOrderbook(ctx, tokenID, 1)
	if err != nil {
		return domain.SpreadInfo{}, err
	}
	info, ok := domain.SpreadFromSnapshot(book)
	if !ok {
		return domain.SpreadInfo{}, fmt.Errorf("polymarket/clob: spread %s: %w", tokenID, domain.ErrPriceUnavailable)
	}
	return info, nil
}

// GetOrderbooks fetches books concurrently. Tokens whose fetch fails are
// absent from the result.
func (c *ClobClient) GetOrderbooks(ctx context.Context, tokenIDs []string, depth int) map[string]domain.OrderbookSnapshot {
	var (
		mu  sync.Mutex
		out = make(map[string]domain.OrderbookSnapshot, len(tokenIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, id := range tokenIDs {
		g.Go(func() error {
			book, err := c.GetOrderbook(gctx, id, depth)
			if err != nil {
				return nil
			}
			mu.Lock()
			out[id] = book
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

var _ domain.BookSource = (*ClobClient)(nil)
