package rbac

import (
	"sync"
	"time"
)

const (
	// DefaultCacheTTL bounds how long a resolved permission set may be served
	// without recomputation, independent of explicit invalidation.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultCacheSize is the maximum number of principals with a memoized
	// permission set.
	DefaultCacheSize = 4096
)

// Engine is the in-memory RBAC core: the entity store, the membership graph,
// the resolver and the consistency cache behind one API.
//
// All mutations take the exclusive lock and invalidate affected cache entries
// before returning, so a caller never observes a stale authorization result
// after a committed mutation. Reads take the shared lock and never block on
// unrelated writes.
type Engine struct {
	mu sync.RWMutex

	// Entity store.
	roles      map[int64]*Role
	perms      map[int64]*Permission
	roleBySlug map[string]int64
	permBySlug map[string]int64
	nextRoleID int64
	nextPermID int64

	// Membership graph: forward and reverse indexes for each relation.
	userRoles map[int64]map[int64]struct{}
	roleUsers map[int64]map[int64]struct{}
	userPerms map[int64]map[int64]struct{}
	permUsers map[int64]map[int64]struct{}
	rolePerms map[int64]map[int64]struct{}
	permRoles map[int64]map[int64]struct{}

	cache *permissionCache
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	cacheEnabled bool
	cacheTTL     time.Duration
	cacheSize    int
}

// WithCacheTTL overrides the cache time-to-live. A non-positive value falls
// back to the default.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *engineOptions) {
		if ttl > 0 {
			o.cacheTTL = ttl
		}
	}
}

// WithCacheSize overrides the maximum number of cached principals.
func WithCacheSize(n int) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// WithCacheDisabled turns off memoization; every query resolves from the graph.
func WithCacheDisabled() Option {
	return func(o *engineOptions) { o.cacheEnabled = false }
}

// NewEngine creates an empty engine.
func NewEngine(opts ...Option) *Engine {
	o := &engineOptions{
		cacheEnabled: true,
		cacheTTL:     DefaultCacheTTL,
		cacheSize:    DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Engine{
		roles:      make(map[int64]*Role),
		perms:      make(map[int64]*Permission),
		roleBySlug: make(map[string]int64),
		permBySlug: make(map[string]int64),
		userRoles:  make(map[int64]map[int64]struct{}),
		roleUsers:  make(map[int64]map[int64]struct{}),
		userPerms:  make(map[int64]map[int64]struct{}),
		permUsers:  make(map[int64]map[int64]struct{}),
		rolePerms:  make(map[int64]map[int64]struct{}),
		permRoles:  make(map[int64]map[int64]struct{}),
		cache:      newPermissionCache(o.cacheSize, o.cacheTTL, o.cacheEnabled),
	}
}

// CacheStats reports consistency cache counters.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.stats()
}

// addEdge inserts (a, b) into a forward index and (b, a) into the reverse one.
// Reports whether the edge was absent.
func addEdge(fwd, rev map[int64]map[int64]struct{}, a, b int64) bool {
	set, ok := fwd[a]
	if !ok {
		set = make(map[int64]struct{})
		fwd[a] = set
	}
	if _, present := set[b]; present {
		return false
	}
	set[b] = struct{}{}

	rset, ok := rev[b]
	if !ok {
		rset = make(map[int64]struct{})
		rev[b] = rset
	}
	rset[a] = struct{}{}
	return true
}

// removeEdge drops (a, b) from both indexes. Reports whether it was present.
func removeEdge(fwd, rev map[int64]map[int64]struct{}, a, b int64) bool {
	set, ok := fwd[a]
	if !ok {
		return false
	}
	if _, present := set[b]; !present {
		return false
	}
	delete(set, b)
	if len(set) == 0 {
		delete(fwd, a)
	}
	if rset, ok := rev[b]; ok {
		delete(rset, a)
		if len(rset) == 0 {
			delete(rev, b)
		}
	}
	return true
}
