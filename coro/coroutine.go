package coro

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Swind/go-offload/core"
)

type coroutineState int32

const (
	stateRunnable coroutineState = iota
	stateRunning
	stateSuspended
	stateDone
)

// Coroutine is one cooperatively scheduled function. Its goroutine only
// executes while it holds its scheduler's baton.
type Coroutine struct {
	id     uint64
	sched  *Scheduler
	ctx    context.Context
	fn     func(ctx context.Context)
	handle *Handle

	// resume hands the baton to this coroutine.
	resume chan struct{}
	state  atomic.Int32

	// started and wakeErr are guarded by the scheduler: started by its loop,
	// wakeErr by its mutex.
	started bool
	wakeErr error
}

type coroutineKey struct{}

// Current returns the coroutine bound to ctx.
func Current(ctx context.Context) (*Coroutine, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(coroutineKey{}).(*Coroutine)
	return c, ok
}

// ID returns the scheduler-local coroutine id.
func (c *Coroutine) ID() uint64 { return c.id }

// Name returns "<scheduler>/<id>".
func (c *Coroutine) Name() string { return c.handle.name }

// Scheduler returns the scheduler running c.
func (c *Coroutine) Scheduler() *Scheduler { return c.sched }

func (c *Coroutine) main() {
	s := c.sched
	c.state.Store(int32(stateRunning))

	var err error
	defer func() {
		if rec := recover(); rec != nil {
			perr := core.NewPanicError(rec, core.TaskID(c.handle.name), -1)
			s.panicHandler.HandlePanic(c.ctx, s.name, -1, rec, perr.Stack)
			err = perr
		}
		c.state.Store(int32(stateDone))
		c.handle.finish(err)
		s.finished()
		s.yield <- struct{}{}
	}()

	c.fn(c.ctx)
}

// park gives the baton back to the loop and waits until the loop hands it
// back. It returns the error Stop attached to the wakeup, if any.
func (c *Coroutine) park() error {
	c.state.Store(int32(stateSuspended))
	c.sched.yield <- struct{}{}
	<-c.resume
	c.state.Store(int32(stateRunning))
	return c.sched.takeWakeErr(c)
}

func (c *Coroutine) String() string {
	return fmt.Sprintf("coroutine(%s)", c.handle.name)
}
