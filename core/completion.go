package core

import "sync"

// CompletionState tracks one join call from submission to consumption.
type CompletionState int32

const (
	// CompletionSubmitted: task handed to the pool, no waiter registered yet.
	CompletionSubmitted CompletionState = iota
	// CompletionPending: a wake handle is armed and the result is outstanding.
	CompletionPending
	// CompletionReady: the result is stored and waiters have been woken.
	CompletionReady
	// CompletionConsumed: the result has been read.
	CompletionConsumed
)

func (s CompletionState) String() string {
	switch s {
	case CompletionSubmitted:
		return "submitted"
	case CompletionPending:
		return "pending"
	case CompletionReady:
		return "ready"
	case CompletionConsumed:
		return "consumed"
	default:
		return "unknown"
	}
}

// Completion is the single-writer/single-reader result slot of a Task.
//
// The worker writes it once through complete; the joiner arms a wake handle
// and reads it once through Result. The result write happens-before the wake
// handle fires and before Done is closed.
type Completion[R any] struct {
	mu    sync.Mutex
	state CompletionState
	wake  func()
	done  chan struct{}

	value R
	err   error
}

func newCompletion[R any]() *Completion[R] {
	return &Completion[R]{done: make(chan struct{})}
}

// Arm registers wake to be fired once the result is stored.
// It returns false, leaving wake unregistered, when the result is already
// available; the caller must then read it directly instead of suspending.
func (c *Completion[R]) Arm(wake func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CompletionSubmitted {
		return false
	}
	c.wake = wake
	c.state = CompletionPending
	return true
}

// complete stores the result and fires the armed wake handle. Only the first call has effect.
func (c *Completion[R]) complete(value R, err error) bool {
	c.mu.Lock()
	if c.state >= CompletionReady {
		c.mu.Unlock()
		return false
	}
	c.value = value
	c.err = err
	c.state = CompletionReady
	wake := c.wake
	c.wake = nil
	close(c.done)
	c.mu.Unlock()

	if wake != nil {
		wake()
	}
	return true
}

// Done is closed once the result is stored, for goroutine waiters.
func (c *Completion[R]) Done() <-chan struct{} {
	return c.done
}

// IsReady reports whether the result has been stored.
func (c *Completion[R]) IsReady() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// State returns the current lifecycle state.
func (c *Completion[R]) State() CompletionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result consumes the stored value. A second call returns ErrResultConsumed.
func (c *Completion[R]) Result() (R, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero R
	switch c.state {
	case CompletionReady:
		c.state = CompletionConsumed
		value := c.value
		c.value = zero
		return value, c.err
	case CompletionConsumed:
		return zero, ErrResultConsumed
	default:
		return zero, ErrResultNotReady
	}
}
