package urlcheck

import (
	"sync"

	"coursecheck/pkg/contracts/domain"
)

// Cache stores reachability results keyed by normalized URL for the lifetime
// of one run. It is never persisted across runs. Lookups and inserts are
// guarded because the worker pool and the submitting pass race on the same
// URL.
type Cache struct {
	mu      sync.Mutex
	results map[string]domain.ReachabilityResult
}

// NewCache creates an empty per-run cache.
func NewCache() *Cache {
	return &Cache{results: make(map[string]domain.ReachabilityResult)}
}

// Get returns the cached result for a normalized URL.
func (c *Cache) Get(normURL string) (domain.ReachabilityResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[normURL]
	return r, ok
}

// Put stores the result for a normalized URL.
func (c *Cache) Put(normURL string, r domain.ReachabilityResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[normURL] = r
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}
