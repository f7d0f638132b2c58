package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// chanScheduler parks each suspension on its own channel. It is enough to
// drive Await without a real cooperative scheduler.
type chanScheduler struct {
	mu    sync.Mutex
	next  ResumeToken
	wakes map[ResumeToken]chan struct{}

	beforeArm func()
	suspends  atomic.Int32
	resumes   atomic.Int32
}

func newChanScheduler() *chanScheduler {
	return &chanScheduler{wakes: make(map[ResumeToken]chan struct{})}
}

func (s *chanScheduler) Spawn(fn func(ctx context.Context)) error {
	go fn(WithScheduler(context.Background(), s))
	return nil
}

func (s *chanScheduler) Suspend(ctx context.Context, arm func(ResumeToken) bool) error {
	s.mu.Lock()
	s.next++
	tok := s.next
	ch := make(chan struct{}, 1)
	s.wakes[tok] = ch
	s.mu.Unlock()

	if s.beforeArm != nil {
		s.beforeArm()
	}
	if !arm(tok) {
		s.mu.Lock()
		delete(s.wakes, tok)
		s.mu.Unlock()
		return nil
	}
	s.suspends.Add(1)
	<-ch
	return nil
}

func (s *chanScheduler) Resume(tok ResumeToken) bool {
	s.mu.Lock()
	ch, ok := s.wakes[tok]
	delete(s.wakes, tok)
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.resumes.Add(1)
	ch <- struct{}{}
	return true
}

// escapedScheduler behaves like a scheduler whose ctx leaked out of its coroutine.
type escapedScheduler struct{}

func (escapedScheduler) Spawn(func(context.Context)) error { return nil }
func (escapedScheduler) Suspend(context.Context, func(ResumeToken) bool) error {
	return ErrNotInCoroutine
}
func (escapedScheduler) Resume(ResumeToken) bool { return false }

// closingScheduler arms every suspension and then reports itself closed, like
// a scheduler whose Stop raced the arm.
type closingScheduler struct {
	beforeArm func()
}

func (closingScheduler) Spawn(func(context.Context)) error { return nil }
func (s closingScheduler) Suspend(_ context.Context, arm func(ResumeToken) bool) error {
	s.beforeArm()
	arm(1)
	return errSchedulerGone
}
func (closingScheduler) Resume(ResumeToken) bool { return false }

var errSchedulerGone = errors.New("scheduler gone")

func newTracedPool(t *testing.T, mutate func(*ThreadPoolConfig)) (*ThreadPool, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	p := newTestPool(t, func(c *ThreadPoolConfig) {
		c.Tracer = tp.Tracer("test")
		if mutate != nil {
			mutate(c)
		}
	})
	return p, rec
}

func waitAttr(spans []sdktrace.ReadOnlySpan) string {
	for _, s := range spans {
		if s.Name() != joinSpanName {
			continue
		}
		for _, kv := range s.Attributes() {
			if kv.Key == attribute.Key("offload.wait") {
				return kv.Value.AsString()
			}
		}
	}
	return ""
}

// TestAwait_Blocking verifies the plain goroutine path
// Given: A context without a scheduler
// When: Await runs 2 + 2
// Then: 4 is returned and the span records a blocking wait
func TestAwait_Blocking(t *testing.T) {
	// Arrange
	p, rec := newTracedPool(t, nil)

	// Act
	v, err := Await(context.Background(), p, "add", func() (int, error) { return 2 + 2, nil })

	// Assert
	if err != nil || v != 4 {
		t.Fatalf("Await() = (%d, %v), want (4, nil)", v, err)
	}
	if got := waitAttr(rec.Ended()); got != "blocking" {
		t.Errorf("offload.wait = %q, want blocking", got)
	}
}

func TestAwait_ClosureErrorIsReturned(t *testing.T) {
	p := newTestPool(t, nil)
	want := errors.New("lookup failed")

	_, err := Await(context.Background(), p, "", func() (string, error) { return "", want })

	if !errors.Is(err, want) {
		t.Errorf("Await() error = %v, want %v", err, want)
	}
}

// TestAwait_PanicSurfacesAsError verifies panics reach the joiner
// Given: A closure that panics with "boom"
// When: It is awaited
// Then: A PanicError carrying "boom" is returned and the span is marked failed
func TestAwait_PanicSurfacesAsError(t *testing.T) {
	// Arrange
	p, rec := newTracedPool(t, func(c *ThreadPoolConfig) { c.PanicHandler = &recordingPanicHandler{} })

	// Act
	_, err := Await(context.Background(), p, "explode", func() (int, error) { panic("boom") })

	// Assert
	var perr *PanicError
	if !errors.As(err, &perr) {
		t.Fatalf("Await() error = %v, want *PanicError", err)
	}
	if perr.Value != "boom" {
		t.Errorf("PanicError.Value = %v, want boom", perr.Value)
	}
	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Errorf("span status = %+v, want error", spans)
	}
}

// TestAwait_Suspended verifies the coroutine path parks and resumes once
// Given: A scheduler in ctx and a closure that takes a while
// When: Await is called
// Then: The caller suspends exactly once and is resumed with the result
func TestAwait_Suspended(t *testing.T) {
	// Arrange
	p, rec := newTracedPool(t, nil)
	sched := newChanScheduler()
	ctx := WithScheduler(context.Background(), sched)

	// Act
	v, err := Await(ctx, p, "slow", func() (int, error) {
		time.Sleep(20 * time.Millisecond)
		return 42, nil
	})

	// Assert
	if err != nil || v != 42 {
		t.Fatalf("Await() = (%d, %v), want (42, nil)", v, err)
	}
	if got := sched.suspends.Load(); got != 1 {
		t.Errorf("suspends = %d, want 1", got)
	}
	if got := sched.resumes.Load(); got != 1 {
		t.Errorf("resumes = %d, want 1", got)
	}
	if got := waitAttr(rec.Ended()); got != "suspended" {
		t.Errorf("offload.wait = %q, want suspended", got)
	}
}

// TestAwait_FastPath verifies no suspension when the result beat the arm
// Given: A scheduler that only arms after the worker has finished
// When: Await is called
// Then: The coroutine never yields and the result is read directly
func TestAwait_FastPath(t *testing.T) {
	// Arrange
	p, rec := newTracedPool(t, func(c *ThreadPoolConfig) { c.MaxWorkers = 1 })
	sched := newChanScheduler()
	sched.beforeArm = func() {
		waitFor(t, func() bool { return p.Stats().Completed == 1 })
	}
	ctx := WithScheduler(context.Background(), sched)

	// Act
	v, err := Await(ctx, p, "quick", func() (string, error) { return "ok", nil })

	// Assert
	if err != nil || v != "ok" {
		t.Fatalf("Await() = (%q, %v), want (ok, nil)", v, err)
	}
	if got := sched.suspends.Load(); got != 0 {
		t.Errorf("suspends = %d, want 0", got)
	}
	if got := waitAttr(rec.Ended()); got != "fast_path" {
		t.Errorf("offload.wait = %q, want fast_path", got)
	}
}

// TestAwait_SuspendedCancel verifies a cancelled coroutine stops waiting
// Given: A suspended join on a closure that blocks
// When: The context is cancelled
// Then: ErrWaitAbandoned wrapping context.Canceled is returned and the late
// completion does not wake anything
func TestAwait_SuspendedCancel(t *testing.T) {
	// Arrange
	p := newTestPool(t, nil)
	sched := newChanScheduler()
	ctx, cancel := context.WithCancel(WithScheduler(context.Background(), sched))
	gate := make(chan struct{})
	finished := make(chan struct{})

	// Act
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := Await(ctx, p, "stuck", func() (int, error) {
		<-gate
		close(finished)
		return 1, nil
	})

	// Assert
	if !errors.Is(err, ErrWaitAbandoned) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Await() error = %v, want ErrWaitAbandoned and context.Canceled", err)
	}
	close(gate)
	<-finished
	waitFor(t, func() bool { return p.ActiveTaskCount() == 0 })
	if got := sched.resumes.Load(); got != 1 {
		t.Errorf("resumes = %d, want 1", got)
	}
}

func TestAwait_BlockingDeadline(t *testing.T) {
	p := newTestPool(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	gate := make(chan struct{})
	defer close(gate)

	_, err := Await(ctx, p, "stuck", func() (int, error) { <-gate; return 0, nil })

	if !errors.Is(err, ErrWaitAbandoned) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Await() error = %v, want ErrWaitAbandoned and DeadlineExceeded", err)
	}
}

// TestAwait_EscapedContextFallsBack verifies the blocking fallback
func TestAwait_EscapedContextFallsBack(t *testing.T) {
	p, rec := newTracedPool(t, nil)
	ctx := WithScheduler(context.Background(), escapedScheduler{})

	v, err := Await(ctx, p, "", func() (int, error) { return 9, nil })

	if err != nil || v != 9 {
		t.Fatalf("Await() = (%d, %v), want (9, nil)", v, err)
	}
	if got := waitAttr(rec.Ended()); got != "blocking" {
		t.Errorf("offload.wait = %q, want blocking", got)
	}
}

func TestAwait_NilPool(t *testing.T) {
	_, err := Await(context.Background(), nil, "", func() (int, error) { return 0, nil })

	if !errors.Is(err, ErrNilPool) {
		t.Errorf("Await() error = %v, want ErrNilPool", err)
	}
}

func TestAwait_ClosedPool(t *testing.T) {
	p := newTestPool(t, nil)
	p.Shutdown()

	_, err := Await(context.Background(), p, "", func() (int, error) { return 0, nil })

	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Await() error = %v, want ErrPoolClosed", err)
	}
}

// TestAwait_ManyConcurrentJoins verifies each join observes its own result once
func TestAwait_ManyConcurrentJoins(t *testing.T) {
	const k = 100
	p := newTestPool(t, nil)
	sched := newChanScheduler()
	ctx := WithScheduler(context.Background(), sched)

	results := make([]int, k)
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Await(ctx, p, "", func() (int, error) {
				time.Sleep(time.Millisecond)
				return i * i, nil
			})
			if err != nil {
				t.Errorf("Await(%d) error = %v", i, err)
			}
			results[i] = v
		}()
	}
	wg.Wait()

	for i, v := range results {
		if v != i*i {
			t.Errorf("results[%d] = %d, want %d", i, v, i*i)
		}
	}
}

// TestAwait_ReadyResultSurvivesClosingScheduler verifies a finished task is not lost
// Given: A scheduler that fails Suspend after the task has already completed
// When: Await runs
// Then: The computed value is returned instead of the scheduler error
func TestAwait_ReadyResultSurvivesClosingScheduler(t *testing.T) {
	// Arrange
	p := newTestPool(t, nil)
	sched := closingScheduler{beforeArm: func() {
		waitFor(t, func() bool { return p.Stats().Completed == 1 })
	}}
	ctx := WithScheduler(context.Background(), sched)

	// Act
	v, err := Await(ctx, p, "", func() (int, error) { return 7, nil })

	// Assert
	if err != nil || v != 7 {
		t.Fatalf("Await() = (%d, %v), want (7, nil)", v, err)
	}
}

// TestAwait_SchedulerErrorWithoutResult verifies the scheduler error surfaces while the task runs
func TestAwait_SchedulerErrorWithoutResult(t *testing.T) {
	p := newTestPool(t, nil)
	gate := make(chan struct{})
	defer close(gate)
	ctx := WithScheduler(context.Background(), closingScheduler{beforeArm: func() {}})

	_, err := Await(ctx, p, "", func() (int, error) { <-gate; return 1, nil })

	if !errors.Is(err, errSchedulerGone) {
		t.Errorf("Await() error = %v, want %v", err, errSchedulerGone)
	}
}
