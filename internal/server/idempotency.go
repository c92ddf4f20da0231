package server

import (
	"container/list"
	"sync"

	"github.com/dgnsrekt/speechify/internal/document"
)

// idempotencyCache remembers the outcome of the most recent submissions and
// pulls by key. Entries are evicted least recently used first.
type idempotencyCache struct {
	capacity int

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List
}

type idempotencyEntry struct {
	key  string
	done chan struct{}

	// Written before done is closed.
	success bool
	chunk   *document.Chunk
	aborted bool
}

func newIdempotencyCache(capacity int) *idempotencyCache {
	return &idempotencyCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// begin returns the entry for key. owner is true when the caller created it
// and must call finish or abort; otherwise the caller waits on done.
func (c *idempotencyCache) begin(key string) (entry *idempotencyEntry, owner bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		return elem.Value.(*idempotencyEntry), false
	}

	e := &idempotencyEntry{key: key, done: make(chan struct{})}
	c.items[key] = c.eviction.PushFront(e)

	for c.eviction.Len() > c.capacity {
		oldest := c.eviction.Back()
		c.eviction.Remove(oldest)
		delete(c.items, oldest.Value.(*idempotencyEntry).key)
	}
	return e, true
}

// finish records the outcome for waiters and later replays.
func (c *idempotencyCache) finish(e *idempotencyEntry, success bool) {
	if e == nil {
		return
	}
	e.success = success
	close(e.done)
}

// finishPull records the chunk handed out for a pull. A nil chunk means the
// queue was empty.
func (c *idempotencyCache) finishPull(e *idempotencyEntry, chunk *document.Chunk) {
	if e == nil {
		return
	}
	e.chunk = chunk
	close(e.done)
}

// abort forgets key so a later attempt is processed normally.
func (c *idempotencyCache) abort(key string, e *idempotencyEntry) {
	if e == nil {
		return
	}

	c.mu.Lock()
	if elem, ok := c.items[key]; ok && elem.Value == e {
		c.eviction.Remove(elem)
		delete(c.items, key)
	}
	c.mu.Unlock()

	e.aborted = true
	close(e.done)
}

func (c *idempotencyCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.eviction.Len()
}
