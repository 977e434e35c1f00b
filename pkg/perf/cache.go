package perf

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// AdaptiveCache wraps an LRU cache with optional value compression
// above a size threshold, and grounds its eviction policy on the same
// golang-lru library already wired for schema discovery (pkg/schema).
type AdaptiveCache struct {
	mu          sync.Mutex
	cache       *lru.Cache[string, entry]
	compression *Compressor
}

type entry struct {
	value      []byte
	compressed bool
}

// NewAdaptiveCache builds a cache bounded at maxSize entries.
// compressionThreshold is the byte size above which a value is
// compressed before storage; 0 disables compression.
func NewAdaptiveCache(maxSize int, compressionThreshold int) (*AdaptiveCache, error) {
	if maxSize <= 0 {
		maxSize = 1000
	}
	c, err := lru.New[string, entry](maxSize)
	if err != nil {
		return nil, err
	}
	return &AdaptiveCache{cache: c, compression: NewCompressor(compressionThreshold)}, nil
}

// Set stores a value, compressing it first when it exceeds the
// configured threshold.
func (c *AdaptiveCache) Set(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, compressed, err := c.compression.MaybeCompress(value)
	if err != nil {
		return err
	}
	c.cache.Add(key, entry{value: stored, compressed: compressed})
	return nil
}

// Get retrieves and, if necessary, decompresses a cached value.
func (c *AdaptiveCache) Get(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.compressed {
		return e.value, true, nil
	}
	decoded, err := c.compression.Decompress(e.value)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

func (c *AdaptiveCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

func (c *AdaptiveCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}
