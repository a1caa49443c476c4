// Package cache memoizes completed search results. Values are the
// applied-transformation sequences of winning kernels, keyed by the
// search key string; replaying a cached sequence onto the original
// kernel reproduces the winner without compiling anything.
package cache

import (
	"encoding/json"
	"sync"

	"autotune/kernel"
)

// Cache stores opt sequences by search key. Get treats any unreadable
// or undecodable entry as a miss; Put failures are surfaced so callers
// can log them, but a search never fails because of one.
type Cache interface {
	Get(key string) ([]kernel.Opt, bool)
	Put(key string, opts []kernel.Opt) error
}

func encodeOpts(opts []kernel.Opt) ([]byte, error) {
	return json.Marshal(opts)
}

func decodeOpts(data []byte) ([]kernel.Opt, error) {
	var opts []kernel.Opt
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// MemoryCache is a map-backed Cache for tests and single-process runs.
// Safe for concurrent use by independent searches.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (c *MemoryCache) Get(key string) ([]kernel.Opt, bool) {
	c.mu.RLock()
	data, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	opts, err := decodeOpts(data)
	if err != nil {
		return nil, false
	}
	return opts, true
}

func (c *MemoryCache) Put(key string, opts []kernel.Opt) error {
	data, err := encodeOpts(opts)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = data
	c.mu.Unlock()
	return nil
}
