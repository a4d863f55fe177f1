package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// newTestClient connects to POLYARB_TEST_REDIS_ADDR under a random key
// prefix, or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("POLYARB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("POLYARB_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, KeyPrefix: "polyarb-test-" + uuid.NewString()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Key(t *testing.T) {
	c := Wrap(goredis.NewClient(&goredis.Options{Addr: "localhost:0"}), "")
	defer c.Close()
	assert.Equal(t, "polyarb:book:tok:bids", c.key("book", "tok", "bids"))
}

func TestBookStore_RoundTrip(t *testing.T) {
	c := newTestClient(t)
	s := NewBookStore(c, time.Minute)
	ctx := context.Background()
	ts := time.Unix(1700000000, 0)

	require.NoError(t, s.SetSnapshot(ctx, domain.OrderbookSnapshot{
		AssetID:   "tok",
		Bids:      []domain.PriceLevel{{Price: 0.45, Size: 10}, {Price: 0.44, Size: 20}},
		Asks:      []domain.PriceLevel{{Price: 0.5, Size: 5}, {Price: 0.52, Size: 7}},
		Timestamp: ts,
	}))

	book, err := s.GetOrderbook(ctx, "tok", 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{{Price: 0.45, Size: 10}, {Price: 0.44, Size: 20}}, book.Bids)
	assert.Equal(t, 0.5, book.BestAsk)
	assert.True(t, book.Timestamp.Equal(ts))

	top, err := s.GetOrderbook(ctx, "tok", 1)
	require.NoError(t, err)
	assert.Len(t, top.Asks, 1)

	_, err = s.GetOrderbook(ctx, "missing", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.SetLastTrade(ctx, "tok", 0.48, ts))
	p, err := s.GetLastTradePrice(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 0.48, p)
}

func TestOpportunityCache_PutGet(t *testing.T) {
	c := newTestClient(t)
	oc := NewOpportunityCache(c, time.Minute)
	ctx := context.Background()

	opp := &domain.EnhancedOpportunity{
		ID:               "o1",
		Class:            domain.ClassNegRiskRebalancing,
		Legs:             []domain.Leg{{TokenID: "b"}, {TokenID: "a"}},
		ProfitPercentage: 4.2,
		DiscoveredAt:     time.Now(),
	}
	require.NoError(t, oc.Put(ctx, opp))

	rec, err := oc.Get(ctx, opp.Signature())
	require.NoError(t, err)
	assert.Equal(t, "o1", rec.ID)

	top, err := oc.Top(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 4.2, top[0].ProfitPercentage)

	_, err = oc.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
