package core

import "sync"

const defaultTaskHistoryCapacity = 100

// ring keeps the newest cap values and drops the oldest on overflow.
type ring[T any] struct {
	mu   sync.Mutex
	buf  []T
	next int  // slot the next Add writes
	full bool // buf has wrapped at least once
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = defaultTaskHistoryCapacity
	}
	return &ring[T]{buf: make([]T, capacity)}
}

// newExecutionHistory is the pool's record of finished tasks.
func newExecutionHistory(capacity int) *ring[TaskExecutionRecord] {
	return newRing[TaskExecutionRecord](capacity)
}

func (r *ring[T]) Add(v T) {
	r.mu.Lock()
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

func (r *ring[T]) lenLocked() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Recent returns up to limit values, newest first. limit <= 0 returns all.
func (r *ring[T]) Recent(limit int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.lenLocked()
	if n == 0 {
		return nil
	}
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]T, n)
	idx := r.next
	for i := range out {
		idx--
		if idx < 0 {
			idx = len(r.buf) - 1
		}
		out[i] = r.buf[idx]
	}
	return out
}

// Last returns the newest value.
func (r *ring[T]) Last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.lenLocked() == 0 {
		return zero, false
	}
	idx := r.next - 1
	if idx < 0 {
		idx = len(r.buf) - 1
	}
	return r.buf[idx], true
}
