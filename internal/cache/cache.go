// Package cache provides the content-addressed classification cache.
//
// Entries are keyed by a hash of (vendor fingerprint, rounded amount, kind)
// rather than transaction ID, so identical-looking transactions across owners
// and tax years share hits. Entries are derived facts with no expiry;
// last-writer-wins on concurrent insert is acceptable.
package cache

import (
	"sync"

	"github.com/taxquill/taxquill/internal/model"
)

// ClassificationCache is a thread-safe fingerprint -> result store. It is an
// explicitly owned instance injected into the engine, never a package-level
// singleton.
type ClassificationCache struct {
	entries map[string]model.ClassificationResult
	mu      sync.RWMutex
}

// New creates an empty classification cache.
func New() *ClassificationCache {
	return &ClassificationCache{
		entries: make(map[string]model.ClassificationResult),
	}
}

// Get retrieves a cached result by cache key.
func (c *ClassificationCache) Get(key string) (model.ClassificationResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result, ok := c.entries[key]
	return result, ok
}

// Set stores a result under the given cache key, overwriting any previous
// entry.
func (c *ClassificationCache) Set(key string, result model.ClassificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = result
}

// Size returns the number of cached entries.
func (c *ClassificationCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *ClassificationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]model.ClassificationResult)
}
