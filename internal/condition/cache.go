package condition

import "sync"

// DefaultCacheCapacity bounds the parse-memoization cache when no explicit
// capacity is configured. Condition strings can originate from less-trusted
// authoring paths, so the cache must never grow without bound.
const DefaultCacheCapacity = 1024

type cacheEntry struct {
	predicate Predicate
	seq       uint64
}

// Cache memoizes compiled predicate trees by normalized source string. It is
// an explicit, injected dependency rather than package-level state so tests
// can construct and discard it freely. Insertion is insert-if-absent under a
// single lock; when full, the oldest entry is evicted.
type Cache struct {
	mu       sync.Mutex
	capacity int
	nextSeq  uint64
	entries  map[string]cacheEntry
}

// NewCache creates a bounded predicate cache. A capacity <= 0 selects
// DefaultCacheCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]cacheEntry, capacity),
	}
}

// GetOrParse returns the compiled predicate for source, parsing and caching
// it on first use. Parse failures are returned and never cached.
func (c *Cache) GetOrParse(source string) (Predicate, error) {
	key := Normalize(source)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		return entry.predicate, nil
	}

	predicate, err := Parse(source)
	if err != nil {
		return nil, err
	}

	if len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.nextSeq++
	c.entries[key] = cacheEntry{predicate: predicate, seq: c.nextSeq}

	return predicate, nil
}

// Len reports the number of cached predicates.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset discards all cached predicates.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry, c.capacity)
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestSeq uint64
	first := true
	for key, entry := range c.entries {
		if first || entry.seq < oldestSeq {
			oldestKey = key
			oldestSeq = entry.seq
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
