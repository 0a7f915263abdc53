package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CacheEntry represents a cached item.
type CacheEntry struct {
	Data      []byte
	Metadata  map[string]string
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Cache stores serialized pattern artifacts. Patterns are deterministic in
// their generation parameters, so a hit can serve a generation request
// without re-running the pipeline; only UUID and timestamp would differ,
// which is exactly why cached responses are served verbatim.
type Cache interface {
	// Get retrieves a cached pattern by batch code and parameter variant.
	Get(ctx context.Context, batchCode, variant string) (*CacheEntry, bool)

	// Set stores a serialized pattern in the cache.
	Set(ctx context.Context, batchCode, variant string, data []byte, metadata map[string]string, ttl time.Duration) error

	// Delete removes a pattern from the cache.
	Delete(ctx context.Context, batchCode, variant string) error

	// Clear clears all cached patterns.
	Clear(ctx context.Context) error

	// Stats returns cache statistics.
	Stats() CacheStats
}

// Variant builds the parameter fingerprint used as the second cache key
// component.
func Variant(algorithm string, gridSize, numInks int) string {
	return fmt.Sprintf("%s/%d/%d", algorithm, gridSize, numInks)
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Size      int64
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// memoryCache is an in-memory implementation of Cache.
type memoryCache struct {
	mu       sync.Mutex
	entries  map[string]*CacheEntry
	maxSize  int64
	maxItems int
	stats    CacheStats
	ttl      time.Duration
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache(maxSize int64, maxItems int, defaultTTL time.Duration) Cache {
	return &memoryCache{
		entries:  make(map[string]*CacheEntry),
		maxSize:  maxSize,
		maxItems: maxItems,
		ttl:      defaultTTL,
	}
}

// cacheKey generates a cache key from batch code and parameter variant.
func cacheKey(batchCode, variant string) string {
	return fmt.Sprintf("%s:%s", batchCode, variant)
}

// Get retrieves a cached pattern.
func (c *memoryCache) Get(ctx context.Context, batchCode, variant string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keyStr := cacheKey(batchCode, variant)
	entry, ok := c.entries[keyStr]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	if entry.IsExpired() {
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	return entry, true
}

// Set stores a serialized pattern in the cache.
func (c *memoryCache) Set(ctx context.Context, batchCode, variant string, data []byte, metadata map[string]string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}

	entry := &CacheEntry{
		Data:      data,
		Metadata:  metadata,
		ExpiresAt: time.Now().Add(ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entrySize := int64(len(data))
	currentSize := c.getCurrentSizeLocked()

	// Evict expired entries first
	c.evictExpiredLocked()

	// Check if we need to evict to make room
	if currentSize+entrySize > c.maxSize || len(c.entries) >= c.maxItems {
		if !c.evictForSpaceLocked(entrySize) {
			return fmt.Errorf("cache full and unable to evict")
		}
	}

	keyStr := cacheKey(batchCode, variant)
	c.entries[keyStr] = entry

	return nil
}

// Delete removes a pattern from the cache.
func (c *memoryCache) Delete(ctx context.Context, batchCode, variant string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	keyStr := cacheKey(batchCode, variant)
	delete(c.entries, keyStr)

	return nil
}

// Clear clears all cached patterns.
func (c *memoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CacheEntry)
	c.stats = CacheStats{}

	return nil
}

// Stats returns cache statistics.
func (c *memoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.getCurrentSizeLocked()
	stats.Items = len(c.entries)

	return stats
}

// getCurrentSizeLocked calculates the current cache size (must be called with lock held).
func (c *memoryCache) getCurrentSizeLocked() int64 {
	var size int64
	for _, entry := range c.entries {
		if !entry.IsExpired() {
			size += int64(len(entry.Data))
		}
	}
	return size
}

// evictExpiredLocked removes expired entries (must be called with lock held).
func (c *memoryCache) evictExpiredLocked() {
	for key, entry := range c.entries {
		if entry.IsExpired() {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
}

// evictForSpaceLocked evicts entries to make room (must be called with lock held).
func (c *memoryCache) evictForSpaceLocked(neededSpace int64) bool {
	// First, try to remove expired entries
	c.evictExpiredLocked()

	currentSize := c.getCurrentSizeLocked()
	if currentSize+neededSpace <= c.maxSize && len(c.entries) < c.maxItems {
		return true
	}

	// Map iteration order stands in for LRU here; pattern payloads are
	// small and uniform so the eviction victim barely matters.
	targetSize := c.maxSize - neededSpace
	for key, entry := range c.entries {
		if currentSize <= targetSize && len(c.entries) < c.maxItems {
			break
		}
		delete(c.entries, key)
		c.stats.Evictions++
		currentSize -= int64(len(entry.Data))
	}

	return true
}
