package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsefeed/moment-search/internal/moment"
)

type memoryEntry struct {
	key        string
	value      []byte
	insertedAt time.Time
	size       int64
}

// MemoryCache is a mutex-guarded bounded store with per-entry TTL. When at
// capacity, inserting a new key evicts the oldest-inserted entry
// (FIFO-by-insertion, not access-order LRU). Expired entries are removed
// lazily on Get and proactively by Cleanup.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	order    []string // insertion order, oldest first
	capacity int
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewMemoryCache creates a MemoryCache with the given capacity and TTL.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryCache{
		entries:  make(map[string]*memoryEntry, capacity),
		capacity: capacity,
		ttl:      ttl,
		logger:   slog.Default().With("component", "memory-cache"),
		now:      time.Now,
	}
}

// Get returns the cached result for the query if present and unexpired.
// Expired entries are evicted on access.
func (c *MemoryCache) Get(ctx context.Context, query *moment.Query) (*moment.SearchResult, bool) {
	key := Key(query)
	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	if c.expired(entry) {
		c.remove(key)
		c.mu.Unlock()
		return nil, false
	}
	value := entry.value
	c.mu.Unlock()

	var result moment.SearchResult
	if err := json.Unmarshal(value, &result); err != nil {
		c.logger.Error("cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

// Set stores the result, evicting the single oldest-inserted entry when a
// new key would exceed capacity.
func (c *MemoryCache) Set(ctx context.Context, query *moment.Query, result *moment.SearchResult) {
	key := Key(query)
	value, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		c.remove(key)
	} else if len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[key] = &memoryEntry{
		key:        key,
		value:      value,
		insertedAt: c.now(),
		size:       int64(len(key) + len(value)),
	}
	c.order = append(c.order, key)
}

// Cleanup purges all expired entries and returns how many were removed.
func (c *MemoryCache) Cleanup(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if c.expired(entry) {
			c.remove(key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("expired entries purged", "count", removed)
	}
	return removed
}

// Clear empties the store.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*memoryEntry, c.capacity)
	c.order = c.order[:0]
	return nil
}

// Stats counts active versus expired-but-unswept entries and estimates
// memory usage from the serialized entry sizes.
func (c *MemoryCache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := Stats{TotalEntries: len(c.entries)}
	for _, entry := range c.entries {
		if c.expired(entry) {
			stats.ExpiredEntries++
		} else {
			stats.ActiveEntries++
		}
		stats.MemoryUsageBytes += entry.size
	}
	return stats
}

func (c *MemoryCache) expired(entry *memoryEntry) bool {
	return c.now().Sub(entry.insertedAt) >= c.ttl
}

// remove deletes the entry and its position in the insertion queue.
// Callers must hold the lock.
func (c *MemoryCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// evictOldest drops the oldest-inserted live entry. Callers must hold the
// lock.
func (c *MemoryCache) evictOldest() {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[oldest]; ok {
			delete(c.entries, oldest)
			return
		}
	}
}
