// Package coro is a small cooperative scheduler: many coroutines multiplexed
// onto one dispatch loop, of which exactly one runs at any time.
//
// It implements core.Scheduler, so code running in a coroutine can offload
// blocking calls with offload.Join and only that coroutine waits.
package coro

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/Swind/go-offload/core"
)

// Scheduler runs coroutines one at a time on its dispatch loop.
//
// A coroutine runs until it suspends (Suspend, Yield, Sleep, Handle.Wait or
// offload.Join), returns, or panics; then the loop hands the baton to the next
// ready coroutine. Resume is safe from any goroutine.
type Scheduler struct {
	name         string
	logger       core.Logger
	panicHandler core.PanicHandler
	lockThread   bool
	base         context.Context

	mu      sync.Mutex
	ready   *queue.Queue // *Coroutine
	parked  map[core.ResumeToken]*Coroutine
	live    int
	quiet   chan struct{} // closed when live drops to zero
	closed  bool
	nextID  uint64
	stopped chan struct{}

	nextToken atomic.Uint64
	switches  atomic.Uint64
	spawned   atomic.Uint64
	completed atomic.Uint64

	// wake nudges the loop when the ready queue gains work.
	wake chan struct{}
	// yield returns the baton from the running coroutine to the loop.
	yield chan struct{}

	stopOnce sync.Once
}

var _ core.Scheduler = (*Scheduler)(nil)

// NewScheduler creates a scheduler and starts its dispatch loop.
func NewScheduler(name string, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:    name,
		ready:   queue.New(),
		parked:  make(map[core.ResumeToken]*Coroutine),
		stopped: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		yield:   make(chan struct{}),

		lockThread: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = core.NewDefaultLogger()
	}
	if s.panicHandler == nil {
		s.panicHandler = &core.DefaultPanicHandler{Logger: s.logger}
	}
	s.base = core.WithScheduler(context.Background(), s)

	go s.run()
	return s
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string { return s.name }

func (s *Scheduler) run() {
	if s.lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	defer close(s.stopped)

	for {
		c, ok := s.next()
		if !ok {
			return
		}

		s.switches.Add(1)
		if !c.started {
			c.started = true
			go c.main()
		} else {
			c.resume <- struct{}{}
		}
		<-s.yield
	}
}

// next blocks until a coroutine is ready. It reports false once the
// scheduler is stopped and no coroutine is left.
func (s *Scheduler) next() (*Coroutine, bool) {
	for {
		var cancelled []*Coroutine

		s.mu.Lock()
		for s.ready.Length() > 0 {
			c := s.ready.Remove().(*Coroutine)
			if s.closed && !c.started {
				cancelled = append(cancelled, c)
				s.retireLocked()
				continue
			}
			s.mu.Unlock()
			s.cancel(cancelled)
			return c, true
		}
		exit := s.closed && s.live == 0
		s.mu.Unlock()
		s.cancel(cancelled)

		if exit {
			return nil, false
		}
		<-s.wake
	}
}

func (s *Scheduler) cancel(cs []*Coroutine) {
	for _, c := range cs {
		c.state.Store(int32(stateDone))
		c.handle.finish(ErrSchedulerClosed)
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Go spawns fn as a new coroutine and returns its handle.
func (s *Scheduler) Go(fn func(ctx context.Context)) (*Handle, error) {
	if fn == nil {
		return nil, errNilFunc
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSchedulerClosed
	}
	s.nextID++
	c := &Coroutine{
		id:     s.nextID,
		sched:  s,
		fn:     fn,
		resume: make(chan struct{}),
		handle: newHandle(s.nextID, fmt.Sprintf("%s/%d", s.name, s.nextID)),
	}
	c.ctx = context.WithValue(s.base, coroutineKey{}, c)
	s.live++
	if s.quiet == nil {
		s.quiet = make(chan struct{})
	}
	s.ready.Add(c)
	s.mu.Unlock()

	s.spawned.Add(1)
	s.signal()
	return c.handle, nil
}

// Spawn implements core.Scheduler.
func (s *Scheduler) Spawn(fn func(ctx context.Context)) error {
	_, err := s.Go(fn)
	return err
}

// current returns the running coroutine bound to ctx.
func (s *Scheduler) current(ctx context.Context) (*Coroutine, error) {
	c, ok := Current(ctx)
	if !ok || coroutineState(c.state.Load()) != stateRunning {
		return nil, ErrNotInCoroutine
	}
	if c.sched != s {
		return nil, ErrForeignScheduler
	}
	return c, nil
}

// Suspend implements core.Scheduler. It parks the calling coroutine under a
// fresh token after arm accepts it.
func (s *Scheduler) Suspend(ctx context.Context, arm func(token core.ResumeToken) bool) error {
	c, err := s.current(ctx)
	if err != nil {
		return err
	}

	tok := core.ResumeToken(s.nextToken.Add(1))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.parked[tok] = c
	s.mu.Unlock()

	if arm(tok) {
		return c.park()
	}

	s.mu.Lock()
	_, pending := s.parked[tok]
	delete(s.parked, tok)
	s.mu.Unlock()
	if pending {
		return nil
	}
	// The token was resumed anyway, so c is already queued; absorb that wakeup.
	// arm declined, so the caller never suspended and its wake error is moot.
	_ = c.park()
	return nil
}

// Resume implements core.Scheduler.
func (s *Scheduler) Resume(token core.ResumeToken) bool {
	s.mu.Lock()
	c, ok := s.parked[token]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.parked, token)
	s.ready.Add(c)
	s.mu.Unlock()

	s.signal()
	return true
}

func (s *Scheduler) takeWakeErr(c *Coroutine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := c.wakeErr
	c.wakeErr = nil
	return err
}

func (s *Scheduler) finished() {
	s.mu.Lock()
	s.retireLocked()
	s.mu.Unlock()
	s.signal()
}

func (s *Scheduler) retireLocked() {
	s.live--
	s.completed.Add(1)
	if s.live == 0 && s.quiet != nil {
		close(s.quiet)
		s.quiet = nil
	}
}

// Yield lets every other ready coroutine run before the caller continues.
func Yield(ctx context.Context) error {
	c, ok := Current(ctx)
	if !ok {
		return ErrNotInCoroutine
	}
	s := c.sched
	if _, err := s.current(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.ready.Add(c)
	s.mu.Unlock()

	s.signal()
	return c.park()
}

// Sleep suspends the calling coroutine for d, or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	c, ok := Current(ctx)
	if !ok {
		return ErrNotInCoroutine
	}
	if d <= 0 {
		return Yield(ctx)
	}
	s := c.sched

	var (
		timer *time.Timer
		stop  func() bool
	)
	err := s.Suspend(ctx, func(tok core.ResumeToken) bool {
		timer = time.AfterFunc(d, func() { s.Resume(tok) })
		if ctx.Done() != nil {
			stop = context.AfterFunc(ctx, func() { s.Resume(tok) })
		}
		return true
	})
	if timer != nil {
		timer.Stop()
	}
	if stop != nil {
		stop()
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// Wait blocks until every spawned coroutine has returned or ctx ends.
// It must not be called from a coroutine of s.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	quiet := s.quiet
	s.mu.Unlock()
	if quiet == nil {
		return nil
	}

	select {
	case <-quiet:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new coroutines, cancels the ones that never started, and
// wakes every suspended coroutine with ErrSchedulerClosed. It returns once
// the remaining coroutines have run to completion and the loop has exited.
// Stop is idempotent and must not be called from a coroutine of s.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		released := len(s.parked)
		for tok, c := range s.parked {
			c.wakeErr = ErrSchedulerClosed
			s.ready.Add(c)
			delete(s.parked, tok)
		}
		s.mu.Unlock()

		s.signal()
		<-s.stopped

		s.logger.Info("coroutine scheduler stopped",
			core.F("scheduler", s.name), core.F("released", released), core.F("switches", s.switches.Load()))
	})
}

// SchedulerStats is a point-in-time snapshot of a Scheduler.
type SchedulerStats struct {
	Name      string
	Live      int
	Ready     int
	Parked    int
	Spawned   uint64
	Completed uint64
	Switches  uint64
	Closed    bool
}

// Stats returns a snapshot of the scheduler.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	stats := SchedulerStats{
		Name:   s.name,
		Live:   s.live,
		Ready:  s.ready.Length(),
		Parked: len(s.parked),
		Closed: s.closed,
	}
	s.mu.Unlock()

	stats.Spawned = s.spawned.Load()
	stats.Completed = s.completed.Load()
	stats.Switches = s.switches.Load()
	return stats
}
