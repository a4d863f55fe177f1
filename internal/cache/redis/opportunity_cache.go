package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// OpportunityCache stores the latest snapshot of each opportunity under its
// signature so other readers see what the scanner currently finds.
type OpportunityCache struct {
	c   *Client
	ttl time.Duration
}

// NewOpportunityCache creates an OpportunityCache. ttl <= 0 defaults to five
// minutes.
func NewOpportunityCache(c *Client, ttl time.Duration) *OpportunityCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OpportunityCache{c: c, ttl: ttl}
}

// Put implements domain.OpportunityCache.
func (oc *OpportunityCache) Put(ctx context.Context, opp *domain.EnhancedOpportunity) error {
	payload, err := json.Marshal(opp.ToRecord())
	if err != nil {
		return fmt.Errorf("redis: marshal opportunity %s: %w", opp.ID, err)
	}
	sig := opp.Signature()
	pipe := oc.c.rdb.TxPipeline()
	pipe.Set(ctx, oc.c.key("opp", sig), payload, oc.ttl)
	pipe.ZAdd(ctx, oc.c.key("opp", "by_profit"), redis.Z{Score: opp.ProfitPercentage, Member: sig})
	pipe.Expire(ctx, oc.c.key("opp", "by_profit"), oc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// Get implements domain.OpportunityCache.
func (oc *OpportunityCache) Get(ctx context.Context, signature string) (domain.OpportunityRecord, error) {
	raw, err := oc.c.rdb.Get(ctx, oc.c.key("opp", signature)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.OpportunityRecord{}, fmt.Errorf("redis: opportunity %s: %w", signature, domain.ErrNotFound)
	}
	if err != nil {
		return domain.OpportunityRecord{}, fmt.Errorf("redis: get opportunity %s: %w", signature, err)
	}
	var rec domain.OpportunityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.OpportunityRecord{}, fmt.Errorf("redis: decode opportunity %s: %w", signature, err)
	}
	return rec, nil
}

// Top returns up to n cached opportunities by profit percentage. Entries
// whose snapshot has expired are skipped.
func (oc *OpportunityCache) Top(ctx context.Context, n int) ([]domain.OpportunityRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	sigs, err := oc.c.rdb.ZRevRange(ctx, oc.c.key("opp", "by_profit"), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: top opportunities: %w", err)
	}
	out := make([]domain.OpportunityRecord, 0, len(sigs))
	for _, sig := range sigs {
		rec, err := oc.Get(ctx, sig)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

var _ domain.OpportunityCache = (*OpportunityCache)(nil)
