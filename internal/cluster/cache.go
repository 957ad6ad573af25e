package cluster

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a computed grouping stays valid without invalidation
const DefaultCacheTTL = 60 * time.Second

// Cache memoizes the last computed grouping
type Cache interface {
	Get() ([]Group, bool)
	Put(groups []Group)
	Invalidate()
}

// ResultCache is a lock-protected Cache with a fixed TTL. Concurrent misses
// may each recompute; no single-flight is attempted.
type ResultCache struct {
	mu         sync.RWMutex
	groups     []Group
	computedAt time.Time
	valid      bool
	ttl        time.Duration
	now        func() time.Time
}

// NewResultCache creates an empty cache; ttl <= 0 uses DefaultCacheTTL
func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResultCache{ttl: ttl, now: time.Now}
}

// Get returns the cached groups, or false on a miss or after the TTL
func (c *ResultCache) Get() ([]Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid || c.now().Sub(c.computedAt) >= c.ttl {
		return nil, false
	}
	return append([]Group(nil), c.groups...), true
}

// Put replaces the cached groups
func (c *ResultCache) Put(groups []Group) {
	stored := append([]Group(nil), groups...)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.groups = stored
	c.computedAt = c.now()
	c.valid = true
}

// Invalidate drops the cached groups
func (c *ResultCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.groups = nil
	c.valid = false
}
