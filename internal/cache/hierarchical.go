package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrMiss is returned by HierarchicalCache.Get when key is absent from
// both L1 (in-process LRU) and L2 (Redis).
var ErrMiss = errors.New("cache: miss")

// HierarchicalCache fronts Redis with an in-process LRU: a Get checks the
// LRU first, then falls back to Redis on miss and backfills the LRU.
// Used for cold (non-hot-path) lookups such as pair metadata and gas
// price fallbacks.
type HierarchicalCache struct {
	mu  sync.Mutex
	lru map[string]lruEntry

	capacity int
	order    []string // MRU at the end; simple enough for the cache sizes in play here

	rdb *redis.Client
	ttl time.Duration
}

type lruEntry struct {
	value []byte
}

// NewHierarchicalCache constructs a cache with an in-process LRU of the
// given capacity backed by the Redis client rdb, with entries expiring
// after ttl in Redis.
func NewHierarchicalCache(rdb *redis.Client, capacity int, ttl time.Duration) *HierarchicalCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &HierarchicalCache{
		lru:      make(map[string]lruEntry, capacity),
		capacity: capacity,
		rdb:      rdb,
		ttl:      ttl,
	}
}

// Get returns the msgpack-decoded value for key into dest. It checks the
// in-process LRU first; on miss, it queries Redis and backfills the LRU
// on a hit.
func (c *HierarchicalCache) Get(ctx context.Context, key string, dest any) error {
	c.mu.Lock()
	entry, ok := c.lru[key]
	if ok {
		c.touch(key)
	}
	c.mu.Unlock()

	if ok {
		return msgpack.Unmarshal(entry.value, dest)
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return err
	}

	if err := msgpack.Unmarshal(raw, dest); err != nil {
		return err
	}

	c.mu.Lock()
	c.insert(key, raw)
	c.mu.Unlock()
	return nil
}

// Set writes value to both the in-process LRU and Redis (with ttl).
func (c *HierarchicalCache) Set(ctx context.Context, key string, value any) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}

	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.insert(key, raw)
	c.mu.Unlock()
	return nil
}

// insert must be called with c.mu held.
func (c *HierarchicalCache) insert(key string, raw []byte) {
	if _, exists := c.lru[key]; !exists && len(c.lru) >= c.capacity {
		c.evictOldest()
	}
	c.lru[key] = lruEntry{value: raw}
	c.touch(key)
}

// touch must be called with c.mu held; it moves key to the MRU end.
func (c *HierarchicalCache) touch(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}

// evictOldest must be called with c.mu held.
func (c *HierarchicalCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.lru, oldest)
}
