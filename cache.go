package cursorstream

import (
	"sync"

	"github.com/edaniels/cursorstream/codec"
)

// Cache sizing. When an insert would exceed the capacity, the oldest
// entries are evicted in bulk down to the trim target so that steady
// churn does not evict on every insert.
const (
	cacheCapacity   = 50
	cacheTrimTarget = 25
)

// cacheEntry is one encoded cursor image keyed by content identifier.
type cacheEntry struct {
	id        ContentID
	payload   []byte
	format    codec.Format
	hotX      int32
	hotY      int32
	width     int32
	height    int32
	touches   uint64
	refreshes uint64
}

// A Cache holds encoded cursor images by content identifier with
// insertion-ordered bulk eviction. It is safe for concurrent use; the
// capture loop inserts while observer write loops look entries up for
// signal upgrades.
type Cache struct {
	mu      sync.Mutex
	entries map[ContentID]*cacheEntry
	order   []ContentID
}

// NewCache returns an empty cursor image cache.
func NewCache() *Cache {
	return &Cache{entries: map[ContentID]*cacheEntry{}}
}

// lookup returns a copy of the entry for id, if present.
func (c *Cache) lookup(id ContentID) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return cacheEntry{}, false
	}
	return *e, true
}

// insert stores a new entry, evicting the oldest entries first when
// the cache is full. Inserting an identifier that is already present
// replaces its payload without changing its insertion position.
func (c *Cache) insert(e cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[e.id]; ok {
		e.touches = existing.touches
		e.refreshes = existing.refreshes
		*existing = e
		return
	}
	if len(c.order) >= cacheCapacity {
		evict := len(c.order) - cacheTrimTarget
		for _, id := range c.order[:evict] {
			delete(c.entries, id)
		}
		c.order = append(c.order[:0], c.order[evict:]...)
	}
	c.entries[e.id] = &e
	c.order = append(c.order, e.id)
}

// touch records a hit for an entry. Hits do not affect eviction
// order; eviction is strictly by insertion age.
func (c *Cache) touch(id ContentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.touches++
	}
}

// updatePayload replaces the stored bytes for id after a forced
// refresh. If the entry was evicted in the meantime it is reinserted.
func (c *Cache) updatePayload(id ContentID, payload []byte) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if ok {
		e.payload = payload
		e.refreshes++
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.insert(cacheEntry{id: id, payload: payload})
}

// Len returns the number of cached cursor images.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// dataMessageFromEntry rebuilds a full payload message from a cached
// entry, used when an observer needs bytes for an identifier it has
// not seen.
func dataMessageFromEntry(e cacheEntry) *Message {
	return NewDataMessage(DataPayload{
		ContentID: e.id,
		Payload:   e.payload,
		Format:    e.format,
		HotspotX:  e.hotX,
		HotspotY:  e.hotY,
		Width:     e.width,
		Height:    e.height,
	})
}
