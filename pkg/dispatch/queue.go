// Package dispatch owns the in-memory work queues and the scheduler
// loop that moves mentions through the pipeline. Both queues are
// deduplicating FIFOs: pushing an item whose key is already enqueued is
// a no-op, which lets the intake poller re-scan safely.
package dispatch

import "sync"

// Queue is a mutex-guarded FIFO with key-based dedup. Keys leave the
// set when the item is popped, so a mention can be re-enqueued after a
// later pass decides it needs work again.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	keys  map[string]struct{}
	keyFn func(T) string
}

func NewQueue[T any](keyFn func(T) string) *Queue[T] {
	return &Queue[T]{
		keys:  make(map[string]struct{}),
		keyFn: keyFn,
	}
}

// Push appends item unless an entry with the same key is already
// queued. Returns true when the item was accepted.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := q.keyFn(item)
	if _, dup := q.keys[key]; dup {
		return false
	}
	q.keys[key] = struct{}{}
	q.items = append(q.items, item)
	return true
}

// Pop removes and returns the oldest item. The second return is false
// when the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	delete(q.keys, q.keyFn(item))
	return item, true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Contains reports whether an item with the given key is enqueued.
func (q *Queue[T]) Contains(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.keys[key]
	return ok
}
