package offload

import (
	"context"

	"github.com/Swind/go-offload/core"
)

// Join runs fn on the default thread pool and returns its value.
//
// Inside a coroutine only the calling coroutine waits; its scheduler keeps
// running others. Elsewhere the calling goroutine blocks. A panic in fn is
// returned as a *PanicError carrying the original panic value.
func Join[R any](ctx context.Context, fn func() R) (R, error) {
	return JoinOn(ctx, GetGlobalThreadPool(), fn)
}

// JoinErr is Join for closures that return an error. The error is returned untouched.
func JoinErr[R any](ctx context.Context, fn func() (R, error)) (R, error) {
	return JoinErrOn(ctx, GetGlobalThreadPool(), fn)
}

// MustJoin is Join that re-panics in the caller with fn's original panic value.
// It also panics on pool errors such as ErrPoolClosed.
func MustJoin[R any](ctx context.Context, fn func() R) R {
	v, err := Join(ctx, fn)
	if err != nil {
		if perr, ok := AsPanicError(err); ok {
			perr.Repanic()
		}
		panic(err)
	}
	return v
}

// JoinOn is Join on an explicit pool.
func JoinOn[R any](ctx context.Context, pool *ThreadPool, fn func() R) (R, error) {
	var wrapped func() (R, error)
	if fn != nil {
		wrapped = func() (R, error) { return fn(), nil }
	}
	return core.Await(ctx, pool, core.FuncName(fn), wrapped)
}

// JoinErrOn is JoinErr on an explicit pool.
func JoinErrOn[R any](ctx context.Context, pool *ThreadPool, fn func() (R, error)) (R, error) {
	return core.Await(ctx, pool, "", fn)
}

// JoinNamed is JoinErrOn with an explicit task name for logs, history and spans.
func JoinNamed[R any](ctx context.Context, pool *ThreadPool, name string, fn func() (R, error)) (R, error) {
	return core.Await(ctx, pool, name, fn)
}

// JoinStateOn runs fn on pool with the state ThreadInit built for the worker
// thread that picks it up. Each worker owns its state, so fn may mutate it
// freely; S is typically a pointer. A worker whose state is not an S fails the
// join with ErrStateType.
func JoinStateOn[S, R any](ctx context.Context, pool *ThreadPool, fn func(S) R) (R, error) {
	var wrapped func(S) (R, error)
	if fn != nil {
		wrapped = func(s S) (R, error) { return fn(s), nil }
	}
	return core.AwaitState(ctx, pool, core.FuncName(fn), wrapped)
}

// JoinStateErrOn is JoinStateOn for closures that return an error.
func JoinStateErrOn[S, R any](ctx context.Context, pool *ThreadPool, fn func(S) (R, error)) (R, error) {
	return core.AwaitState(ctx, pool, "", fn)
}
