package catalog

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ETagCache maps entry identifiers to the version token last observed for
// them. Writes always overwrite, never merge; the bound only exists to keep
// the store finite, it is far above any session's working set.
type ETagCache struct {
	cache *lru.Cache[string, string]
}

// NewETagCache builds a bounded token cache.
func NewETagCache(size int) (*ETagCache, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create etag cache: %w", err)
	}
	return &ETagCache{cache: cache}, nil
}

// Get returns the last-known token for an entry.
func (c *ETagCache) Get(id string) (string, bool) {
	return c.cache.Get(id)
}

// Set records a token for an entry, replacing any previous value.
func (c *ETagCache) Set(id, etag string) {
	if id == "" || etag == "" {
		return
	}
	c.cache.Add(id, etag)
}

// Len returns the number of cached tokens.
func (c *ETagCache) Len() int {
	return c.cache.Len()
}
