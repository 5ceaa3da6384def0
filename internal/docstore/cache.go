package docstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CacheConfig controls the per-accessor read cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"`
}

// DefaultCacheConfig provides sensible defaults.
var DefaultCacheConfig = CacheConfig{
	Enabled: true,
	TTL:     5 * time.Minute,
	MaxSize: 100,
}

// Validate checks the configuration values.
func (c CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxSize, validation.Required, validation.Min(1)),
	)
}

type cacheEntry struct {
	data       any
	insertedAt time.Time
	expiresAt  time.Time
}

// Cache is a time-boxed in-memory cache with a bounded entry count.
// Expiry and eviction are both lazy: nothing runs in the background,
// expired entries are dropped on Get and the oldest quarter of entries
// is evicted on Set once the cache is full.
type Cache struct {
	cfg CacheConfig
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates a cache owned by a single accessor. A disabled config
// yields a cache that never stores anything.
func NewCache(cfg CacheConfig) *Cache {
	return &Cache{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached value for key, or (nil, false) when absent or
// past its TTL. An expired entry is deleted on this path.
func (c *Cache) Get(key string) (any, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.data, true
}

// Set stores data under key with expiry now+TTL, evicting the oldest
// floor(maxSize*0.25) entries first when the cache is at capacity.
func (c *Cache) Set(key string, data any) {
	if !c.cfg.Enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.cfg.MaxSize {
		c.evictOldestLocked()
	}

	now := c.now()
	c.entries[key] = cacheEntry{
		data:       data,
		insertedAt: now,
		expiresAt:  now.Add(c.cfg.TTL),
	}
}

// evictOldestLocked removes the oldest quarter of entries by insertion time.
func (c *Cache) evictOldestLocked() {
	type aged struct {
		key        string
		insertedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.insertedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].insertedAt.Before(all[j].insertedAt)
	})

	victims := c.cfg.MaxSize / 4
	if victims < 1 {
		victims = 1
	}
	if victims > len(all) {
		victims = len(all)
	}
	for _, v := range all[:victims] {
		delete(c.entries, v.key)
	}
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateByPrefix removes every key starting with prefix.
func (c *Cache) InvalidateByPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
