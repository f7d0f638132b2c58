package core

import "context"

// ResumeToken identifies one suspension of one coroutine. Tokens are never reused.
type ResumeToken uint64

// Scheduler is the capability set the bridge needs from a cooperative scheduler.
//
// Suspend must be called from the coroutine bound to ctx. It calls arm with a
// fresh token before yielding; if arm returns false the coroutine does not
// yield and Suspend returns nil at once. A Resume for the token may arrive at
// any point after arm starts, including before the coroutine has actually
// yielded, and must still wake it.
//
// Resume is safe to call from any goroutine, including worker threads, and
// never blocks. It returns true only for the first call with a given token.
type Scheduler interface {
	Spawn(fn func(ctx context.Context)) error
	Suspend(ctx context.Context, arm func(token ResumeToken) bool) error
	Resume(token ResumeToken) bool
}

type schedulerKey struct{}

// WithScheduler returns a context bound to s. Schedulers install it for every coroutine they run.
func WithScheduler(ctx context.Context, s Scheduler) context.Context {
	return context.WithValue(ctx, schedulerKey{}, s)
}

// CurrentScheduler returns the scheduler bound to ctx, if any.
func CurrentScheduler(ctx context.Context) (Scheduler, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(schedulerKey{}).(Scheduler)
	return s, ok && s != nil
}
