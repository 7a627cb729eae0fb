package cache

import (
	"context"
	"time"

	"finora/internal/core"
	"finora/internal/ledger"
)

// CachedForecasts is a read-through ledger.ForecastCache. Only hits are
// remembered, so a forecast saved later is seen once the miss is retried.
type CachedForecasts struct {
	next ledger.ForecastCache
	lru  *LRUCache[core.SavedForecast]
}

// NewCachedForecasts wraps next with an LRU of size entries kept for ttl.
func NewCachedForecasts(next ledger.ForecastCache, size int, ttl time.Duration) *CachedForecasts {
	return &CachedForecasts{next: next, lru: NewLRUCache[core.SavedForecast](size, ttl)}
}

func (c *CachedForecasts) Lookup(ctx context.Context, month core.MonthKey) (core.SavedForecast, bool, error) {
	key := month.String()
	if f, ok := c.lru.Get(key); ok {
		return f, true, nil
	}
	f, ok, err := c.next.Lookup(ctx, month)
	if err != nil || !ok {
		return f, ok, err
	}
	c.lru.Set(key, f)
	return f, true, nil
}

// Invalidate drops a month so the next lookup reads through.
func (c *CachedForecasts) Invalidate(month core.MonthKey) {
	c.lru.Delete(month.String())
}

// LRU exposes the underlying cache for registration with a Manager.
func (c *CachedForecasts) LRU() *LRUCache[core.SavedForecast] {
	return c.lru
}
