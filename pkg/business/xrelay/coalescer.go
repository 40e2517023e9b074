package xrelay

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// coalescer deduplicates concurrent calls to the same keyed operation
// and caches the last successful result for a short TTL, so a burst of
// callers at startup (get_quota_status, sync_init) collapses to one
// network round trip. Failures never populate the cache: a failed call
// clears its singleflight entry immediately and leaves the TTL cache
// untouched, so the next caller retries against the network rather
// than replaying a stale error.
type coalescer struct {
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cachedEntry
	ttl     time.Duration
}

type cachedEntry struct {
	value     any
	expiresAt time.Time
}

func newCoalescer(ttl time.Duration) *coalescer {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &coalescer{entries: make(map[string]cachedEntry), ttl: ttl}
}

// do returns the cached value for key if still fresh, otherwise
// coalesces concurrent calls through singleflight and populates the
// cache on success only.
func (c *coalescer) do(key string, fn func() (any, error)) (any, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		result, callErr := fn()
		if callErr != nil {
			return nil, callErr
		}
		c.store(key, result)
		return result, nil
	})
	return v, err
}

func (c *coalescer) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (c *coalescer) store(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
}
