package marketdata

import (
	"context"
	"sync"
	"time"

	"perpctl/internal/exchange"
)

const (
	// CacheTTL and HardRefreshThreshold are spec.md §4.B's cache contract:
	// entries are reused for up to 30s, but anything older than 10s is
	// refreshed on a require_fresh call regardless of TTL.
	CacheTTL              = 30 * time.Second
	HardRefreshThreshold  = 10 * time.Second
	defaultKlineLimit     = 200
)

type cacheEntry struct {
	klines    []exchange.Kline
	fetchedAt time.Time
}

// Cache is the per-symbol OHLCV cache described in spec.md §4.B. It owns no
// indicator math; Snapshot composes this with the pure functions in
// indicators.go. Grounded on the teacher's PositionCacheWorker ticker
// pattern (internal/runner/sessions/position_cache_worker.go), adapted from
// a fixed 5-minute refresh to the spec's TTL/hard-refresh pair.
type Cache struct {
	mu      sync.RWMutex
	gw      exchange.Gateway
	entries map[string]cacheEntry
	limit   int
}

func NewCache(gw exchange.Gateway) *Cache {
	return &Cache{gw: gw, entries: make(map[string]cacheEntry), limit: defaultKlineLimit}
}

// Get returns cached klines for (symbol, interval) if they are within TTL,
// or fetches fresh ones otherwise. requireFresh bypasses the TTL but still
// respects the hard refresh threshold: a caller asking for freshness within
// 10s of the last fetch gets the cached value rather than hammering the
// gateway.
func (c *Cache) Get(ctx context.Context, symbol, interval string, requireFresh bool) ([]exchange.Kline, error) {
	key := symbol + "|" + interval
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	age := time.Since(entry.fetchedAt)
	stale := !ok || age > CacheTTL
	mustRefresh := requireFresh && age > HardRefreshThreshold
	if !stale && !mustRefresh {
		return entry.klines, nil
	}

	klines, err := c.gw.GetKlines(ctx, symbol, interval, c.limit)
	if err != nil {
		if ok {
			// Data staleness policy (spec.md §7): keep serving the stale
			// value rather than propagate the error when a cache entry
			// already exists.
			return entry.klines, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{klines: klines, fetchedAt: time.Now()}
	c.mu.Unlock()
	return klines, nil
}

// InvalidateATRConsumers drops the cached entry for (symbol, interval) so
// the next Get call performs a real fetch, which is how an ATR recompute
// can cascade to TP/SL consumers (spec.md §4.B). The engine's cycle does
// not call it; an ATR recompute does not invalidate the cache on its own.
func (c *Cache) InvalidateATRConsumers(symbol, interval string) {
	c.mu.Lock()
	delete(c.entries, symbol+"|"+interval)
	c.mu.Unlock()
}
