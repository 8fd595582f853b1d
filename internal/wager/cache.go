package wager

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"rewards_service/internal/metrics"
)

const (
	DefaultCacheSize = 10000
	DefaultCacheTTL  = 30 * time.Second
)

// CachedProvider fronts another Provider with a size-bounded TTL cache.
// Snapshots may be up to ttl old; stale undercounts are absorbed by the
// ticket clamp.
type CachedProvider struct {
	origin Provider
	lru    *expirable.LRU[string, Snapshot]
}

func NewCachedProvider(origin Provider, size int, ttl time.Duration) *CachedProvider {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedProvider{
		origin: origin,
		lru:    expirable.NewLRU[string, Snapshot](size, nil, ttl),
	}
}

func (c *CachedProvider) GetWagerSnapshot(ctx context.Context, accountID string) (Snapshot, error) {
	if s, ok := c.lru.Get(accountID); ok {
		metrics.WagerLookups.WithLabelValues(metrics.SourceCache).Inc()
		return s, nil
	}
	s, err := c.origin.GetWagerSnapshot(ctx, accountID)
	if err != nil {
		return Snapshot{}, err
	}
	metrics.WagerLookups.WithLabelValues(metrics.SourceOrigin).Inc()
	c.lru.Add(accountID, s)
	return s, nil
}

// Invalidate drops the cached snapshot, e.g. after the refresh job reports
// new totals for the account.
func (c *CachedProvider) Invalidate(accountID string) {
	c.lru.Remove(accountID)
}

func (c *CachedProvider) Purge() {
	c.lru.Purge()
}
