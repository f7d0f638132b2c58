package core

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const joinSpanName = "offload.join"

// Await runs fn on pool and returns its result.
//
// When ctx carries a Scheduler, only the calling coroutine is suspended; its
// scheduler thread keeps running other coroutines until a worker wakes it.
// Without one, the calling goroutine blocks on the completion instead.
//
// If ctx ends before fn finishes, Await returns an error matching both
// ErrWaitAbandoned and ctx.Err(). fn keeps running and its result is dropped.
func Await[R any](ctx context.Context, pool *ThreadPool, name string, fn func() (R, error)) (R, error) {
	task, c := NewTask(name, fn)
	return await(ctx, pool, task, c)
}

// AwaitState is Await for closures that use the state ThreadInit built for the
// worker thread they run on. The state is never shared between workers, so fn
// may mutate it without locking.
func AwaitState[S, R any](ctx context.Context, pool *ThreadPool, name string, fn func(S) (R, error)) (R, error) {
	task, c := NewStateTask(name, fn)
	return await(ctx, pool, task, c)
}

func await[R any](ctx context.Context, pool *ThreadPool, task *Task, c *Completion[R]) (result R, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if pool == nil {
		var zero R
		return zero, ErrNilPool
	}

	ctx, span := pool.cfg.Tracer.Start(ctx, joinSpanName,
		trace.WithAttributes(
			attribute.String("offload.pool", pool.id),
			attribute.String("offload.task.id", task.ID.String()),
			attribute.String("offload.task.name", task.Name),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := pool.Submit(task); err != nil {
		var zero R
		return zero, err
	}

	sched, ok := CurrentScheduler(ctx)
	if !ok {
		span.SetAttributes(attribute.String("offload.wait", "blocking"))
		return awaitBlocking(ctx, c)
	}

	suspended, err := awaitSuspended(ctx, sched, c)
	if errors.Is(err, ErrNotInCoroutine) {
		// ctx escaped its coroutine; the goroutine holding it can still block.
		span.SetAttributes(attribute.String("offload.wait", "blocking"))
		return awaitBlocking(ctx, c)
	}
	if suspended {
		span.SetAttributes(attribute.String("offload.wait", "suspended"))
	} else {
		span.SetAttributes(attribute.String("offload.wait", "fast_path"))
	}
	if err != nil {
		var zero R
		return zero, err
	}
	return c.Result()
}

// awaitSuspended parks the current coroutine until c is ready or ctx ends.
// It reports whether the coroutine actually yielded.
func awaitSuspended[R any](ctx context.Context, sched Scheduler, c *Completion[R]) (bool, error) {
	var (
		suspended bool
		stop      func() bool
	)

	err := sched.Suspend(ctx, func(tok ResumeToken) bool {
		if !c.Arm(func() { sched.Resume(tok) }) {
			return false
		}
		suspended = true
		if ctx.Done() != nil {
			stop = context.AfterFunc(ctx, func() { sched.Resume(tok) })
		}
		return true
	})
	if stop != nil {
		stop()
	}
	if err != nil {
		if c.IsReady() {
			// A ready result wins over a scheduler that is going away.
			return suspended, nil
		}
		return suspended, err
	}

	// Exactly one of the completion and the cancellation resumed us.
	if !c.IsReady() {
		return suspended, abandoned(ctx)
	}
	return suspended, nil
}

func awaitBlocking[R any](ctx context.Context, c *Completion[R]) (R, error) {
	select {
	case <-c.Done():
		return c.Result()
	case <-ctx.Done():
		if c.IsReady() {
			return c.Result()
		}
		var zero R
		return zero, abandoned(ctx)
	}
}

func abandoned(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrWaitAbandoned, context.Cause(ctx))
}
