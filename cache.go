package skyhttp

import (
	"sync"
	"time"
)

// DefaultCacheTTL is the entry lifetime when no per-client TTL is configured.
const DefaultCacheTTL = 5 * time.Minute

// Cache stores Response snapshots keyed by request fingerprint. Returned
// responses are shared and must be treated as read-only.
type Cache interface {
	Get(key string) (*Response, bool)
	Set(key string, resp *Response, ttl time.Duration)
	Delete(key string)
	Clear()
}

type cacheEntry struct {
	resp      *Response
	createdAt time.Time
	ttl       time.Duration
}

func (e *cacheEntry) fresh(now time.Time) bool {
	return now.Sub(e.createdAt) < e.ttl
}

// MemoryCache is the default in-memory Cache. It holds its own lock,
// independent of the pool and queue, so cache traffic never contends with
// unrelated hot paths. Stale entries are purged lazily on lookup.
type MemoryCache struct {
	mu    sync.RWMutex
	store map[string]*cacheEntry
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{store: make(map[string]*cacheEntry)}
}

// Get returns the cached response iff an entry exists and is still within its
// TTL. A stale entry counts as a miss and is evicted.
func (c *MemoryCache) Get(key string) (*Response, bool) {
	c.mu.RLock()
	entry, exists := c.store[key]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if !entry.fresh(time.Now()) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have replaced
		// the stale entry.
		if cur, ok := c.store[key]; ok && cur == entry {
			delete(c.store, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.resp, true
}

// Set inserts or replaces unconditionally.
func (c *MemoryCache) Set(key string, resp *Response, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = &cacheEntry{resp: resp, createdAt: time.Now(), ttl: ttl}
}

// Delete removes an entry.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]*cacheEntry)
}

// Len returns the current number of entries, stale ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// CacheKeyFunc derives the fingerprint a response is cached under.
type CacheKeyFunc func(*Request) string

// CacheCondition decides whether a request participates in caching.
type CacheCondition func(*Request) bool

// DefaultCacheKeyFunc fingerprints a request by method and URL.
func DefaultCacheKeyFunc(req *Request) string {
	return string(req.Method) + ":" + req.URL
}

// DefaultCacheCondition caches GET requests only.
func DefaultCacheCondition(req *Request) bool {
	return req.Method == MethodGet
}
