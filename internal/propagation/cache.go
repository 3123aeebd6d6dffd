package propagation

import (
	"sync"
	"sync/atomic"
)

// ConstantsCache memoizes per-element-set constants (secular rates, SGP4
// records) keyed by tle.ElementSet.Key. Entries are immutable once stored.
// Concurrent builders for the same key may race; LoadOrStore keeps the first
// value and the results are identical.
type ConstantsCache struct {
	entries sync.Map
	hits    atomic.Int64
	misses  atomic.Int64
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// NewConstantsCache creates an empty cache.
func NewConstantsCache() *ConstantsCache {
	return &ConstantsCache{}
}

// load returns the cached value for key, building it on a miss.
// A nil cache builds every time.
func (c *ConstantsCache) load(key string, build func() (any, error)) (any, error) {
	if c == nil {
		return build()
	}
	if v, ok := c.entries.Load(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)
	v, err := build()
	if err != nil {
		return nil, err
	}
	actual, _ := c.entries.LoadOrStore(key, v)
	return actual, nil
}

// Stats returns the current counters.
func (c *ConstantsCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: n}
}
