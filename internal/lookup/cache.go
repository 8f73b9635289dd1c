package lookup

import "sync"

// TypeCache is a thread-safe LRU cache mapping inspection target ids to
// their target type ids. Entries live for the lifetime of the process, so a
// target whose type changes is only picked up after a restart.
type TypeCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]string
	order   []string // oldest first
}

// NewTypeCache creates a cache with the given maximum number of entries.
// If maxSize <= 0, it defaults to 256.
func NewTypeCache(maxSize int) *TypeCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &TypeCache{
		maxSize: maxSize,
		entries: make(map[string]string),
	}
}

// Get returns the cached type id for a target.
func (c *TypeCache) Get(targetID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	typeID, ok := c.entries[targetID]
	if !ok {
		return "", false
	}
	c.moveToEnd(targetID)
	return typeID, true
}

// Put stores a target's type id, evicting the least recently used entry if
// the cache is full.
func (c *TypeCache) Put(targetID, typeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[targetID]; ok {
		c.entries[targetID] = typeID
		c.moveToEnd(targetID)
		return
	}

	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[targetID] = typeID
	c.order = append(c.order, targetID)
}

// Len returns the number of cached targets.
func (c *TypeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TypeCache) moveToEnd(targetID string) {
	for i, k := range c.order {
		if k == targetID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, targetID)
			return
		}
	}
}
