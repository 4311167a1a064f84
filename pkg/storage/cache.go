package storage

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

// CachedKV is a write-through, read-through cache in front of a remote KV.
// Entries expire after the configured TTL so that writes made by other
// processes become visible eventually.
type CachedKV struct {
	next    KV
	cache   *expirable.LRU[string, []byte]
	metrics *observability.Metrics
	bypass  []string
}

// NewCachedKV wraps next with an expiring LRU of at most size entries.
// metrics may be nil.
func NewCachedKV(next KV, size int, ttl time.Duration, metrics *observability.Metrics) *CachedKV {
	if size <= 0 {
		size = DefaultConfig().CacheMaxKeys
	}
	if ttl <= 0 {
		ttl = DefaultConfig().CacheTTL
	}
	return &CachedKV{
		next:    next,
		cache:   expirable.NewLRU[string, []byte](size, nil, ttl),
		metrics: metrics,
	}
}

// WithBypass sends keys starting with any of prefixes straight to the
// wrapped store, never caching them
func (c *CachedKV) WithBypass(prefixes ...string) *CachedKV {
	c.bypass = append(c.bypass, prefixes...)
	return c
}

func (c *CachedKV) bypassed(key string) bool {
	for _, prefix := range c.bypass {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Get implements KV.Get
func (c *CachedKV) Get(ctx context.Context, key string) ([]byte, error) {
	if c.bypassed(key) {
		return c.next.Get(ctx, key)
	}
	if value, ok := c.cache.Get(key); ok {
		c.observe(key, true)
		return cloneBytes(value), nil
	}
	c.observe(key, false)

	value, err := c.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneBytes(value))
	return value, nil
}

// Put implements KV.Put
func (c *CachedKV) Put(ctx context.Context, key string, value []byte) error {
	if c.bypassed(key) {
		return c.next.Put(ctx, key, value)
	}
	if err := c.next.Put(ctx, key, value); err != nil {
		c.cache.Remove(key)
		return err
	}
	c.cache.Add(key, cloneBytes(value))
	return nil
}

// Delete implements KV.Delete
func (c *CachedKV) Delete(ctx context.Context, key string) error {
	c.cache.Remove(key)
	return c.next.Delete(ctx, key)
}

// HealthCheck delegates to the wrapped store when it supports health checks
func (c *CachedKV) HealthCheck(ctx context.Context) error {
	return HealthCheck(ctx, c.next)
}

func (c *CachedKV) observe(key string, hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.WithLabelValues(KeyType(key)).Inc()
	} else {
		c.metrics.CacheMissesTotal.WithLabelValues(KeyType(key)).Inc()
	}
}

// KeyType strips the trailing date from a day-scoped key, e.g.
// "raw_events_2024-03-01" becomes "raw_events".
func KeyType(key string) string {
	if idx := strings.LastIndex(key, "_"); idx > 0 {
		return key[:idx]
	}
	return key
}

// HealthCheck probes kv when it implements HealthChecker
func HealthCheck(ctx context.Context, kv KV) error {
	if hc, ok := kv.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
