package coro

import "github.com/Swind/go-offload/core"

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger. Defaults to core.DefaultLogger.
func WithLogger(l core.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPanicHandler sets the handler told about coroutine panics.
// The panic is also delivered to the coroutine's Handle.
func WithPanicHandler(h core.PanicHandler) Option {
	return func(s *Scheduler) {
		if h != nil {
			s.panicHandler = h
		}
	}
}

// WithLockOSThread controls whether the dispatch loop is pinned to its own
// OS thread. It is pinned by default.
func WithLockOSThread(lock bool) Option {
	return func(s *Scheduler) {
		s.lockThread = lock
	}
}
