package summary

import (
	"container/list"
	"sync"
)

type cacheEntry struct {
	key   string
	value string
}

// Cache maps a turn-sequence fingerprint to a computed summary. It is bounded:
// once the capacity is exceeded, least-recently-used entries are evicted until
// cleanupTo remain. A single mutex covers the whole read-check-compute-write
// sequence, so under contention at most one compute runs per key; a second
// caller for the same key blocks until the first completes and then observes
// the cached value.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	cleanupTo int
	entries   map[string]*list.Element
	order     *list.List // front = most recently used
}

func NewCache(capacity, cleanupTo int) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	if cleanupTo <= 0 || cleanupTo > capacity {
		cleanupTo = capacity / 2
	}
	return &Cache{
		capacity:  capacity,
		cleanupTo: cleanupTo,
		entries:   make(map[string]*list.Element),
		order:     list.New(),
	}
}

// GetOrCompute returns the cached value for key, invoking compute only on a
// miss. Failed computes are not cached.
func (c *Cache) GetOrCompute(key string, compute func() (string, error)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, nil
	}

	value, err := compute()
	if err != nil {
		return "", err
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: value})
	if len(c.entries) > c.capacity {
		c.evictLocked()
	}
	return value, nil
}

func (c *Cache) evictLocked() {
	for len(c.entries) > c.cleanupTo {
		elem := c.order.Back()
		if elem == nil {
			return
		}
		c.order.Remove(elem)
		delete(c.entries, elem.Value.(*cacheEntry).key)
	}
}

// Len reports the current number of cached summaries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Contains reports whether a key is currently cached, without touching
// recency.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}
