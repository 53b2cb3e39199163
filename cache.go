package blockfile

import (
	"container/list"
)

// cacheEntry is one cached record payload.
type cacheEntry struct {
	index int64
	data  []byte
}

// recordCache is a FIFO queue of cached record payloads, keyed by head frame
// index, bounded by a total byte budget. It backs Options.MaxCacheMemory /
// Options.CachedWrites.
type recordCache struct {
	entries *list.List
	byIndex map[int64]*list.Element
	size    int64
}

// newRecordCache returns a new, empty recordCache.
func newRecordCache() *recordCache {
	return &recordCache{
		entries: list.New(),
		byIndex: make(map[int64]*list.Element),
	}
}

// Push caches data under index, evicting entries from the front until
// data fits within maxBytes. If index is already cached, its entry is
// refreshed and moved to the back.
func (c *recordCache) Push(index int64, data []byte, maxBytes int64) {
	if elem, ok := c.byIndex[index]; ok {
		entry := elem.Value.(*cacheEntry)
		c.size -= int64(len(entry.data))
		entry.data = data
		c.size += int64(len(data))
		c.entries.MoveToBack(elem)
		return
	}
	for c.size+int64(len(data)) > maxBytes {
		front := c.entries.Front()
		if front == nil {
			break
		}
		entry := c.entries.Remove(front).(*cacheEntry)
		delete(c.byIndex, entry.index)
		c.size -= int64(len(entry.data))
	}
	c.byIndex[index] = c.entries.PushBack(&cacheEntry{index: index, data: data})
	c.size += int64(len(data))
}

// Get returns the cached payload for index, if any.
func (c *recordCache) Get(index int64) ([]byte, bool) {
	elem, ok := c.byIndex[index]
	if !ok {
		return nil, false
	}
	return elem.Value.(*cacheEntry).data, true
}

// Remove evicts index from the cache, if present.
func (c *recordCache) Remove(index int64) {
	elem, ok := c.byIndex[index]
	if !ok {
		return
	}
	entry := c.entries.Remove(elem).(*cacheEntry)
	c.size -= int64(len(entry.data))
	delete(c.byIndex, index)
}
