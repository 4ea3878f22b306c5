package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dennisdiepolder/cdrboard/backend/internal/types"
)

// DefaultCapacity bounds the cache when no capacity is configured. Scope
// cardinality is tiny in practice, the bound only guards against adversarial
// date-range queries growing the map without limit.
const DefaultCapacity = 64

type entry struct {
	scope      types.QueryScope
	bundle     *types.AggregateBundle
	storedAt   time.Time
	lastAccess atomic.Int64 // unix nanos, updated lock-free on Get
}

// BundleCache stores previously computed aggregate bundles keyed by their
// normalized scope. Entries are replaced wholesale: a Put installs a new
// immutable bundle pointer, so concurrent readers never observe a half-built
// bundle. Gets share a read lock and never block each other.
type BundleCache struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	capacity int
}

// NewBundleCache creates a cache evicting the least recently used entry once
// capacity is exceeded. capacity <= 0 falls back to DefaultCapacity.
func NewBundleCache(capacity int) *BundleCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &BundleCache{
		entries:  make(map[string]*entry),
		capacity: capacity,
	}
}

// Get returns the cached bundle for the scope, or nil and false on a miss.
func (c *BundleCache) Get(scope types.QueryScope) (*types.AggregateBundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[scope.Key()]
	if !ok {
		return nil, false
	}
	e.lastAccess.Store(time.Now().UnixNano())
	return e.bundle, true
}

// Put installs bundle for the scope, replacing any existing entry atomically.
func (c *BundleCache) Put(scope types.QueryScope, bundle *types.AggregateBundle) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	key := scope.Key()
	if e, ok := c.entries[key]; ok {
		e.bundle = bundle
		e.storedAt = now
		e.lastAccess.Store(now.UnixNano())
		return
	}

	e := &entry{scope: scope.Normalized(), bundle: bundle, storedAt: now}
	e.lastAccess.Store(now.UnixNano())
	c.entries[key] = e

	if len(c.entries) > c.capacity {
		c.evictOldest(key)
	}
}

// evictOldest drops the entry with the stalest access stamp, never the one
// just inserted. Caller holds the write lock.
func (c *BundleCache) evictOldest(keep string) {
	var victim string
	var oldest int64
	for key, e := range c.entries {
		if key == keep {
			continue
		}
		if at := e.lastAccess.Load(); victim == "" || at < oldest {
			victim = key
			oldest = at
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}

// Len returns the number of cached scopes.
func (c *BundleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StoredAt returns when the entry for scope was last replaced.
func (c *BundleCache) StoredAt(scope types.QueryScope) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[scope.Key()]
	if !ok {
		return time.Time{}, false
	}
	return e.storedAt, true
}
