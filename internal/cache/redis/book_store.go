package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// BookStore keeps the latest book per token. It is the BookWriter fed by the
// websocket and the local half of the layered BookSource.
//
// Key schema:
//
//	{prefix}:book:{token}:bids  - sorted set of bid prices (member = price string)
//	{prefix}:book:{token}:asks  - sorted set of ask prices
//	{prefix}:book:{token}:sizes - hash "b:{price}" / "a:{price}" -> size
//	{prefix}:book:{token}:meta  - hash with "ts" (unix nanos)
//	{prefix}:trade:{token}      - hash with "price" and "ts"
type BookStore struct {
	c   *Client
	ttl time.Duration
}

// NewBookStore creates a BookStore. Keys expire after ttl when ttl > 0.
func NewBookStore(c *Client, ttl time.Duration) *BookStore {
	return &BookStore{c: c, ttl: ttl}
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// SetSnapshot implements domain.BookWriter. It atomically replaces the book.
func (s *BookStore) SetSnapshot(ctx context.Context, snap domain.OrderbookSnapshot) error {
	if snap.AssetID == "" {
		return fmt.Errorf("redis: set book: missing asset id")
	}
	bids := s.c.key("book", snap.AssetID, "bids")
	asks := s.c.key("book", snap.AssetID, "asks")
	sizes := s.c.key("book", snap.AssetID, "sizes")
	meta := s.c.key("book", snap.AssetID, "meta")

	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	pipe := s.c.rdb.TxPipeline()
	pipe.Del(ctx, bids, asks, sizes, meta)
	for _, lvl := range snap.Bids {
		p := formatFloat(lvl.Price)
		pipe.ZAdd(ctx, bids, redis.Z{Score: lvl.Price, Member: p})
		pipe.HSet(ctx, sizes, "b:"+p, formatFloat(lvl.Size))
	}
	for _, lvl := range snap.Asks {
		p := formatFloat(lvl.Price)
		pipe.ZAdd(ctx, asks, redis.Z{Score: lvl.Price, Member: p})
		pipe.HSet(ctx, sizes, "a:"+p, formatFloat(lvl.Size))
	}
	pipe.HSet(ctx, meta, "ts", strconv.FormatInt(ts.UnixNano(), 10))
	if s.ttl > 0 {
		for _, k := range []string{bids, asks, sizes, meta} {
			pipe.Expire(ctx, k, s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s: %w", snap.AssetID, err)
	}
	return nil
}

// SetLastTrade implements domain.BookWriter.
func (s *BookStore) SetLastTrade(ctx context.Context, tokenID string, price float64, ts time.Time) error {
	key := s.c.key("trade", tokenID)
	pipe := s.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "price", formatFloat(price), "ts", strconv.FormatInt(ts.UnixNano(), 10))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set last trade %s: %w", tokenID, err)
	}
	return nil
}

// GetOrderbook implements domain.BookSource. It returns domain.ErrNotFound
// when no book is stored.
func (s *BookStore) GetOrderbook(ctx context.Context, tokenID string, depth int) (domain.OrderbookSnapshot, error) {
	stop := int64(-1)
	if depth > 0 {
		stop = int64(depth - 1)
	}

	pipe := s.c.rdb.Pipeline()
	bidsCmd := pipe.ZRevRangeWithScores(ctx, s.c.key("book", tokenID, "bids"), 0, stop)
	asksCmd := pipe.ZRangeWithScores(ctx, s.c.key("book", tokenID, "asks"), 0, stop)
	sizesCmd := pipe.HGetAll(ctx, s.c.key("book", tokenID, "sizes"))
	metaCmd := pipe.HGetAll(ctx, s.c.key("book", tokenID, "meta"))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: get book %s: %w", tokenID, err)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: get book %s: %w", tokenID, domain.ErrNotFound)
	}

	snap := domain.OrderbookSnapshot{AssetID: tokenID}
	if ns, err := strconv.ParseInt(meta["ts"], 10, 64); err == nil {
		snap.Timestamp = time.Unix(0, ns)
	}
	sizes := sizesCmd.Val()
	snap.Bids = levels(bidsCmd.Val(), sizes, "b:")
	snap.Asks = levels(asksCmd.Val(), sizes, "a:")
	if len(snap.Bids) > 0 {
		snap.BestBid = snap.Bids[0].Price
	}
	if len(snap.Asks) > 0 {
		snap.BestAsk = snap.Asks[0].Price
	}
	if snap.BestBid > 0 && snap.BestAsk > 0 {
		snap.MidPrice = (snap.BestBid + snap.BestAsk) / 2
	}
	return snap, nil
}

func levels(zs []redis.Z, sizes map[string]string, sidePrefix string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		size, _ := strconv.ParseFloat(sizes[sidePrefix+member], 64)
		out = append(out, domain.PriceLevel{Price: z.Score, Size: size})
	}
	return out
}

// GetLastTradePrice implements domain.BookSource.
func (s *BookStore) GetLastTradePrice(ctx context.Context, tokenID string) (float64, error) {
	raw, err := s.c.rdb.HGet(ctx, s.c.key("trade", tokenID), "price").Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redis: last trade %s: %w", tokenID, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("redis: last trade %s: %w", tokenID, err)
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: last trade %s: parse %q: %w", tokenID, raw, err)
	}
	return p, nil
}

// GetSpread implements domain.BookSource.
func (s *BookStore) GetSpread(ctx context.Context, tokenID string) (domain.SpreadInfo, error) {
	book, err := s.GetOrderbook(ctx, tokenID, 1)
	if err != nil {
		return domain.SpreadInfo{}, err
	}
	info, ok := domain.SpreadFromSnapshot(book)
	if !ok {
		return domain.SpreadInfo{}, fmt.Errorf("redis: spread %s: %w", tokenID, domain.ErrPriceUnavailable)
	}
	return info, nil
}

var (
	_ domain.BookSource = (*BookStore)(nil)
	_ domain.BookWriter = (*BookStore)(nil)
)
