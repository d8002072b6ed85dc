package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"ragcore/internal/domain"
	"ragcore/internal/port"
)

var _ port.CacheInvalidator = (*QueryCache)(nil)

// QueryCache is an LRU cache of query results with a TTL. Every Invalidate
// bumps a generation counter; results computed under an older generation are
// never stored.
type QueryCache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	order    []string
	maxSize  int
	ttl      time.Duration
	indexGen uint64
	now      func() time.Time
}

type cacheEntry struct {
	results   []domain.ScoredPassage
	timestamp time.Time
	indexGen  uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(model, query string, topK int) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(query))
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(topK))
	h.Write(k[:])
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Generation returns the current invalidation generation.
func (c *QueryCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexGen
}

func (c *QueryCache) Get(model, query string, topK int) ([]domain.ScoredPassage, bool) {
	key := cacheKey(model, query, topK)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	if c.now().Sub(entry.timestamp) > c.ttl || entry.indexGen != c.indexGen {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}

	c.moveToEnd(key)
	return clone(entry.results), true
}

// Put stores results computed while the cache was at generation gen. It is a
// no-op if the cache has been invalidated since.
func (c *QueryCache) Put(gen uint64, model, query string, topK int, results []domain.ScoredPassage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.indexGen {
		return false
	}

	key := cacheKey(model, query, topK)
	entry := &cacheEntry{
		results:   clone(results),
		timestamp: c.now(),
		indexGen:  c.indexGen,
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return true
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
	return true
}

func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
	c.indexGen++
}

func (c *QueryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func clone(results []domain.ScoredPassage) []domain.ScoredPassage {
	if results == nil {
		return nil
	}
	return append([]domain.ScoredPassage(nil), results...)
}

// Searcher answers a text query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.ScoredPassage, error)
}

type CachedSearcher struct {
	searcher Searcher
	cache    *QueryCache
	model    string
}

func NewCachedSearcher(searcher Searcher, cache *QueryCache, model string) *CachedSearcher {
	return &CachedSearcher{
		searcher: searcher,
		cache:    cache,
		model:    model,
	}
}

func (s *CachedSearcher) Search(ctx context.Context, query string, k int) ([]domain.ScoredPassage, error) {
	if results, hit := s.cache.Get(s.model, query, k); hit {
		return results, nil
	}

	gen := s.cache.Generation()
	results, err := s.searcher.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	s.cache.Put(gen, s.model, query, k, results)
	return results, nil
}
