package cache

import (
	"strings"
	"sync"
	"time"

	"stagefs/internal/vfs"
)

// StatCache caches store stats with TTL-based expiration.
// Supports fine-grained invalidation by path.
//
// Thread-safe: Uses RWMutex for concurrent access.
type StatCache struct {
	mu      sync.RWMutex
	entries map[string]*statEntry
	ttl     time.Duration
	maxSize int

	hits   uint64
	misses uint64
}

type statEntry struct {
	stat    vfs.Stat
	expires time.Time
}

// NewStatCache creates a new stat cache.
// ttl: Time-to-live for cached entries (use 0 for no expiration)
// maxSize: Maximum number of entries (use 0 for unlimited)
func NewStatCache(ttl time.Duration, maxSize int) *StatCache {
	return &StatCache{
		entries: make(map[string]*statEntry, 256),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get retrieves the cached stat for a path.
// Returns false if not found, expired, or caching is disabled (STAGEFS_CACHE=0).
func (c *StatCache) Get(path string) (vfs.Stat, bool) {
	if Disabled {
		return vfs.Stat{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok || (c.ttl > 0 && time.Now().After(entry.expires)) {
		c.misses++
		return vfs.Stat{}, false
	}

	c.hits++
	return entry.stat, true
}

// Set stores the stat for a path.
// No-op if caching is disabled (STAGEFS_CACHE=0).
func (c *StatCache) Set(path string, st vfs.Stat) {
	if Disabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Don't add new entries when at capacity
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		if _, exists := c.entries[path]; !exists {
			return
		}
	}

	expires := time.Time{}
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}

	c.entries[path] = &statEntry{stat: st, expires: expires}
}

// Invalidate clears all entries from the cache.
func (c *StatCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > 0 {
		c.entries = make(map[string]*statEntry, 256)
	}
}

// InvalidatePath removes a specific path from the cache.
func (c *StatCache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, path)
}

// InvalidatePrefix removes all paths below the given directory.
func (c *StatCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	for path := range c.entries {
		if strings.HasPrefix(path, prefix) {
			delete(c.entries, path)
		}
	}
}

// InvalidatePathAndParent invalidates a path and its parent directory.
// Used for create and delete, which may add or drop the parent.
func (c *StatCache) InvalidatePathAndParent(path, parentPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, path)
	delete(c.entries, parentPath)
}

// InvalidateRename invalidates paths affected by a rename operation.
// Affects: oldPath, newPath, oldParent, newParent
func (c *StatCache) InvalidateRename(oldPath, newPath, oldParent, newParent string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, oldPath)
	delete(c.entries, newPath)
	delete(c.entries, oldParent)
	delete(c.entries, newParent)
}

// Size returns the current number of entries in the cache.
func (c *StatCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StatCacheStats reports cache occupancy and hit counts.
type StatCacheStats struct {
	Size    int
	MaxSize int
	TTL     time.Duration
	Hits    uint64
	Misses  uint64
}

// Stats returns current cache statistics.
func (c *StatCache) Stats() StatCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return StatCacheStats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		TTL:     c.ttl,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}
