package ledger

import (
	"container/list"
	"sync"

	"github.com/google/uuid"
)

// snapshotCache keeps the shared → unique maps of recently used revisions,
// evicting the least recently used. A nil cache or one of size zero stores
// nothing.
type snapshotCache struct {
	size int

	mu      sync.Mutex
	order   *list.List
	entries map[uuid.UUID]*list.Element
}

type snapshot struct {
	revision uuid.UUID
	index    map[uuid.UUID]uuid.UUID
}

func newSnapshotCache(size int) *snapshotCache {
	return &snapshotCache{
		size:    size,
		order:   list.New(),
		entries: make(map[uuid.UUID]*list.Element),
	}
}

// get returns a copy of the cached map for revision
func (c *snapshotCache) get(revision uuid.UUID) (map[uuid.UUID]uuid.UUID, bool) {
	if c == nil || c.size <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[revision]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(e)
	return copyIndex(e.Value.(*snapshot).index), true
}

func (c *snapshotCache) put(revision uuid.UUID, index map[uuid.UUID]uuid.UUID) {
	if c == nil || c.size <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[revision]; ok {
		c.order.MoveToFront(e)
		return
	}
	c.entries[revision] = c.order.PushFront(&snapshot{revision: revision, index: copyIndex(index)})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*snapshot).revision)
	}
}

func (c *snapshotCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func copyIndex(idx map[uuid.UUID]uuid.UUID) map[uuid.UUID]uuid.UUID {
	out := make(map[uuid.UUID]uuid.UUID, len(idx))
	for k, v := range idx {
		out[k] = v
	}
	return out
}
