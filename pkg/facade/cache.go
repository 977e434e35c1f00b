package facade

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/strata-data/mapengine/pkg/pipeline"
)

const (
	defaultPipelineCacheSize = 500
	defaultResultCacheSize   = 1000
)

// pipelineCache maps a mapping's Key() (mappingId:version) to its
// compiled Pipeline, avoiding rebuilding the phase/stage graph on every
// executeMapping call for a mapping already seen. Plain LRU, same
// library as pkg/schema's discovery cache, in its non-expirable form
// since a compiled pipeline for a given mapping version never goes
// stale on its own — only an explicit mapping update invalidates it.
type pipelineCache struct {
	cache *lru.Cache[string, *pipeline.Pipeline]
}

func newPipelineCache(size int) *pipelineCache {
	if size <= 0 {
		size = defaultPipelineCacheSize
	}
	c, _ := lru.New[string, *pipeline.Pipeline](size)
	return &pipelineCache{cache: c}
}

func (c *pipelineCache) get(key string) (*pipeline.Pipeline, bool) {
	return c.cache.Get(key)
}

func (c *pipelineCache) put(key string, p *pipeline.Pipeline) {
	c.cache.Add(key, p)
}

func (c *pipelineCache) invalidate(key string) {
	c.cache.Remove(key)
}

// resultCache maps hash(mapping)+hash(data) to a previously computed
// result, keyed by resultCacheKey. Only ExecuteMapping uses it, and it
// skips the cache when the Stream strategy is selected, since streamed input is
// unbounded and per-record results are not meaningfully cacheable by a
// whole-payload key.
type resultCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, map[string]interface{}]
}

func newResultCache(size int) *resultCache {
	if size <= 0 {
		size = defaultResultCacheSize
	}
	c, _ := lru.New[string, map[string]interface{}](size)
	return &resultCache{cache: c}
}

func (c *resultCache) get(key string) (map[string]interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Get(key)
}

func (c *resultCache) put(key string, result map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, result)
}

// resultCacheKey hashes the mapping key and the input record together;
// a mapping-version change or any data difference produces a different
// key. JSON marshaling the data is a stable-enough representation for
// cache keying purposes — key collisions degrade to a cache miss, not
// to returning a wrong result, since callers never read this key back
// for anything but cache lookups.
func resultCacheKey(mappingKey string, data map[string]interface{}) (string, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append([]byte(mappingKey+":"), encoded...))
	return hex.EncodeToString(sum[:]), nil
}
