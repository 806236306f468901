package rbac

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// cacheEntry is a memoized resolved permission set stamped with the
// principal's generation at compute time.
type cacheEntry struct {
	perms map[int64]struct{}
	gen   uint64
}

// permissionCache memoizes resolved permission sets per principal.
//
// Entries live until the TTL elapses or the principal is invalidated,
// whichever comes first. A per-principal generation stamp guards against a
// racing fill storing a set computed before a concurrent invalidation: the
// fill is dropped if the generation moved.
//
// The cache is never a source of truth; every entry is recomputable from the
// membership graph.
type permissionCache struct {
	enabled bool
	size    int

	mu      sync.Mutex
	entries *lru.LRU[int64, cacheEntry]
	gen     map[int64]uint64

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
	evictions     atomic.Int64
}

func newPermissionCache(size int, ttl time.Duration, enabled bool) *permissionCache {
	c := &permissionCache{
		enabled: enabled,
		size:    size,
		gen:     make(map[int64]uint64),
	}
	if enabled {
		c.entries = lru.NewLRU[int64, cacheEntry](size, func(int64, cacheEntry) {
			c.evictions.Add(1)
		}, ttl)
	}
	return c
}

// generation returns the principal's current generation stamp.
func (c *permissionCache) generation(userID int64) uint64 {
	if !c.enabled {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[userID]
}

// get returns the memoized set if present and still current.
func (c *permissionCache) get(userID int64) (map[int64]struct{}, bool) {
	if !c.enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(userID)
	if !ok || entry.gen != c.gen[userID] {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry.perms, true
}

// put stores a freshly resolved set unless the principal was invalidated
// while it was being computed.
func (c *permissionCache) put(userID int64, perms map[int64]struct{}, gen uint64) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen[userID] {
		return
	}
	c.entries.Add(userID, cacheEntry{perms: perms, gen: gen})
}

// invalidate evicts the principal's entry and bumps its generation. Called
// synchronously inside the mutating critical section, which establishes the
// happens-before edge for read-your-writes.
func (c *permissionCache) invalidate(userID int64) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen[userID]++
	c.entries.Remove(userID)
	c.invalidations.Add(1)
	c.sweepGenLocked(userID)
}

// sweepGenLocked drops generation stamps for principals without a cached
// entry, keeping the stamp map bounded by the cache size instead of by every
// principal ever invalidated. Dropping a stamp is safe: fills run under the
// engine read lock and invalidations under the write lock, so no fill is in
// flight here, and a later fill only becomes more conservative (a mismatched
// stamp drops the fill, never admits a stale one). The stamp bumped by the
// current invalidation is kept.
func (c *permissionCache) sweepGenLocked(keep int64) {
	if len(c.gen) <= 2*c.size {
		return
	}
	for id := range c.gen {
		if id != keep && !c.entries.Contains(id) {
			delete(c.gen, id)
		}
	}
}

// purge drops every entry.
func (c *permissionCache) purge() {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.gen = make(map[int64]uint64)
}

func (c *permissionCache) stats() CacheStats {
	stats := CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
		Evictions:     c.evictions.Load(),
	}
	if c.enabled {
		c.mu.Lock()
		stats.Entries = c.entries.Len()
		c.mu.Unlock()
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}
