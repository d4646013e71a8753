package source

import "sync/atomic"

// Queue is a bounded non-blocking queue. When full, Put drops the oldest
// item so that readers always see the most recent data.
type Queue[T any] struct {
	ch      chan T
	dropped atomic.Int64
}

// NewQueue creates a queue holding at most size items
func NewQueue[T any](size int) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{ch: make(chan T, size)}
}

// Put enqueues v without blocking
func (q *Queue[T]) Put(v T) {
	for {
		select {
		case q.ch <- v:
			return
		default:
		}

		// Full: drop the oldest item and retry
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

// Get dequeues the oldest item without blocking
func (q *Queue[T]) Get() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Has reports whether an item is available
func (q *Queue[T]) Has() bool {
	return len(q.ch) > 0
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Dropped returns how many items were discarded because the queue was full
func (q *Queue[T]) Dropped() int64 {
	return q.dropped.Load()
}
