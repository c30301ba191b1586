package cache

import (
	"sort"
	"sync"

	"doccatalog/internal/port"
)

// IndexCache keeps open index handles keyed by collection id. It is soft
// state: losing an entry only costs a reload from disk.
type IndexCache struct {
	mu      sync.RWMutex
	entries map[string]port.IndexHandle
	order   []string
	maxSize int
	gen     uint64
}

// NewIndexCache creates a cache holding at most maxSize handles, evicting
// the least recently used one when full. maxSize <= 0 means unbounded.
func NewIndexCache(maxSize int) *IndexCache {
	if maxSize < 0 {
		maxSize = 0
	}
	return &IndexCache{
		entries: make(map[string]port.IndexHandle),
		maxSize: maxSize,
	}
}

func (c *IndexCache) Get(collectionID string) (port.IndexHandle, bool) {
	c.mu.RLock()
	h, ok := c.entries[collectionID]
	bounded := c.maxSize > 0
	c.mu.RUnlock()

	if ok && bounded {
		c.mu.Lock()
		if _, still := c.entries[collectionID]; still {
			c.moveToEnd(collectionID)
		}
		c.mu.Unlock()
	}
	return h, ok
}

func (c *IndexCache) Put(collectionID string, h port.IndexHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(collectionID, h)
}

// Generation returns a counter that changes on every Evict or Clear.
func (c *IndexCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// PutIfGeneration stores h only if no eviction happened since gen was read,
// so a load racing with a delete cannot resurrect the deleted handle.
func (c *IndexCache) PutIfGeneration(collectionID string, h port.IndexHandle, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.put(collectionID, h)
	return true
}

func (c *IndexCache) Evict(collectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if _, ok := c.entries[collectionID]; !ok {
		return
	}
	delete(c.entries, collectionID)
	c.removeFromOrder(collectionID)
}

func (c *IndexCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]port.IndexHandle)
	c.order = c.order[:0]
	c.gen++
}

// Keys returns the cached collection ids in sorted order.
func (c *IndexCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *IndexCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *IndexCache) put(collectionID string, h port.IndexHandle) {
	if _, exists := c.entries[collectionID]; exists {
		c.entries[collectionID] = h
		c.moveToEnd(collectionID)
		return
	}
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[collectionID] = h
	c.order = append(c.order, collectionID)
}

func (c *IndexCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *IndexCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *IndexCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
