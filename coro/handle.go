package coro

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/Swind/go-offload/core"
)

// Handle tracks one spawned coroutine until it returns.
type Handle struct {
	id   uint64
	name string

	mu      sync.Mutex
	done    chan struct{}
	err     error
	waiters []func()
}

func newHandle(id uint64, name string) *Handle {
	return &Handle{id: id, name: name, done: make(chan struct{})}
}

// ID returns the scheduler-local coroutine id.
func (h *Handle) ID() uint64 { return h.id }

// Name returns the coroutine name used in logs and panic reports.
func (h *Handle) Name() string { return h.name }

// Done is closed when the coroutine has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the coroutine's outcome once Done is closed: nil, a
// *core.PanicError, or ErrSchedulerClosed if it never started.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait waits for the coroutine to return. Called from a coroutine, it suspends
// only that coroutine; otherwise it blocks the calling goroutine.
func (h *Handle) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if s, ok := core.CurrentScheduler(ctx); ok {
		var stop func() bool
		err := s.Suspend(ctx, func(tok core.ResumeToken) bool {
			if !h.subscribe(func() { s.Resume(tok) }) {
				return false
			}
			if ctx.Done() != nil {
				stop = context.AfterFunc(ctx, func() { s.Resume(tok) })
			}
			return true
		})
		if stop != nil {
			stop()
		}
		switch {
		case err == nil:
			select {
			case <-h.done:
				return h.Err()
			default:
				return ctx.Err()
			}
		case !errors.Is(err, ErrNotInCoroutine):
			return err
		}
	}

	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// subscribe registers fn to run on completion. It returns false if the
// coroutine already finished.
func (h *Handle) subscribe(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}
	h.waiters = append(h.waiters, fn)
	return true
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.err = err
	waiters := h.waiters
	h.waiters = nil
	close(h.done)
	h.mu.Unlock()

	for _, w := range waiters {
		w()
	}
}
