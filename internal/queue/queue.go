// Package queue implements the bounded multi-producer/multi-consumer
// queue described in spec.md §3-§4.1: a ring buffer guarded by a mutex,
// with two counting semaphores standing in for the original's POSIX
// semaphores (consumable and produceable), and an optional dynamic
// growth mode that trades backpressure for freedom from self-deadlock.
//
// The queue is deliberately not a thin wrapper over a Go channel:
// fastsum's completed queue must grow instead of blocking its
// producers (see NewDynamic), which a channel cannot do.
package queue

import (
	"sync"

	"github.com/matejcik/fastsum/internal/xmem"
)

// Queue is a bounded FIFO of opaque task handles. The zero value is
// not usable; construct with New or NewDynamic.
type Queue struct {
	mu    sync.Mutex
	items []any
	cap   int
	size  int
	head  int
	tail  int

	dynamic bool
	growth  int // initial capacity, reused as the growth quantum

	closed      atomicBool
	consumable  *semaphore
	produceable *semaphore
}

// New creates a fixed-capacity queue. Push blocks while the queue is
// full, applying backpressure to producers.
func New(capacity int) *Queue {
	return newQueue(capacity, false)
}

// NewDynamic creates a queue that grows by capacity items whenever it
// is full instead of blocking Push. capacity is both the initial size
// and the growth quantum. Use this only where producers must never
// block on this queue's fullness — see the package doc and spec.md §4.1
// for why fastsum's completed queue needs this.
func NewDynamic(capacity int) *Queue {
	return newQueue(capacity, true)
}

func newQueue(capacity int, dynamic bool) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue{
		items:       xmem.AllocAny(capacity),
		cap:         capacity,
		dynamic:     dynamic,
		growth:      capacity,
		consumable:  newSemaphore(0),
		produceable: newSemaphore(capacity),
	}
	return q
}

// Push inserts item, transferring ownership to the queue and then to
// whichever Pop call eventually returns it. In fixed-capacity mode,
// Push blocks while the queue is full. Pushing to a closed queue is a
// silent no-op.
func (q *Queue) Push(item any) {
	if !q.dynamic {
		q.produceable.wait()
		if q.closed.load() {
			q.produceable.post()
			return
		}
	}

	q.mu.Lock()
	if q.closed.load() {
		q.mu.Unlock()
		if !q.dynamic {
			q.produceable.post()
		}
		return
	}
	if q.dynamic && q.size == q.cap {
		q.grow()
	}
	q.items[q.head] = item
	q.head = (q.head + 1) % q.cap
	q.size++
	q.mu.Unlock()

	q.consumable.post()
}

// Pop removes and returns the oldest item, blocking while the queue is
// empty. It returns nil once the queue has been closed AND drained: a
// closed queue keeps delivering whatever was already buffered before it
// reports empty, so every pushed item is still handed to exactly one
// Pop call.
func (q *Queue) Pop() any {
	q.consumable.wait()

	q.mu.Lock()
	if q.size == 0 {
		q.mu.Unlock()
		// Only Close's extra post can wake a waiter while size is 0;
		// wake the next waiter in the chain and report empty.
		q.consumable.post()
		return nil
	}
	item := q.items[q.tail]
	q.items[q.tail] = nil
	q.tail = (q.tail + 1) % q.cap
	q.size--
	q.mu.Unlock()

	if !q.dynamic {
		q.produceable.post()
	}
	return item
}

// Close marks the queue closed and wakes exactly one waiter on each
// semaphore. A waiter that wakes and observes closed re-posts the same
// semaphore before returning, so the wakeup cascades to every other
// waiter in turn. Close is idempotent.
func (q *Queue) Close() {
	if !q.closed.set() {
		return // already closed
	}
	q.consumable.post()
	q.produceable.post()
}

// grow enlarges the queue by allocating a buffer initial-capacity items
// larger and copying the logical contents so that the oldest item (the
// tail) lands at slot 0 and the head at the old capacity. Callers must
// hold mu. An allocation
// failure here is fatal (spec.md §4.1, §7): the process aborts via
// xmem.AllocAny.
func (q *Queue) grow() {
	newCap := q.cap + q.growth
	newItems := xmem.AllocAny(newCap)
	n := copy(newItems, q.items[q.tail:q.cap])
	copy(newItems[n:], q.items[:q.tail])
	q.items = newItems
	q.tail = 0
	q.head = q.cap
	q.cap = newCap
}
