package queue

import (
	"sync"
	"sync/atomic"
)

// semaphore is a counting semaphore, standing in for the POSIX
// sem_t used by the original implementation's consumable/produceable
// pair (spec.md §3). A condition variable over an integer count gives
// the same wait/post semantics without pulling in a third-party
// semaphore package for something this small and fundamental.
type semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

func newSemaphore(initial int) *semaphore {
	s := &semaphore{count: initial}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *semaphore) wait() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}

func (s *semaphore) post() {
	s.mu.Lock()
	s.count++
	s.cond.Signal()
	s.mu.Unlock()
}

// atomicBool is the queue's closed flag, mirroring the original's
// "_Atomic int closed" (spec.md §3) as a lock-free atomic.Bool.
type atomicBool struct {
	val atomic.Bool
}

func (b *atomicBool) load() bool {
	return b.val.Load()
}

// set marks the flag true and reports whether this call was the one
// that transitioned it (false if it was already set).
func (b *atomicBool) set() bool {
	return b.val.CompareAndSwap(false, true)
}
