// Package offload lets code running in a cooperative scheduler call blocking
// functions without stalling the scheduler.
//
// A blocking call is wrapped in a closure and handed to a pool of dedicated
// OS threads. Only the calling coroutine is suspended; its scheduler keeps
// running other coroutines until a worker finishes the closure and resumes it.
//
// # Quick Start
//
// Run coroutines on a scheduler and offload blocking work with Join:
//
//	sched := coro.NewScheduler("main")
//	defer sched.Stop()
//
//	sched.Spawn(func(ctx context.Context) {
//		addrs, err := offload.JoinErr(ctx, func() ([]string, error) {
//			return net.LookupHost("example.com")
//		})
//		...
//	})
//	sched.Wait(context.Background())
//
// # Key Concepts
//
// ThreadPool: a bounded, growable set of worker goroutines, each locked to its
// own OS thread for life. Join uses a process-wide default pool; configure it
// with Configure before the first Join, or pass your own pool to JoinOn.
//
// Scheduler: the capability set {Spawn, Suspend, Resume} Join needs from a
// cooperative scheduler. Package coro ships a reference implementation, and
// any scheduler that installs itself with WithScheduler works.
//
// Completion: the single-use result slot between a worker and one joiner.
// A result that is ready before the coroutine suspends is returned without
// suspending at all.
//
// # Errors
//
// A panic in the closure comes back as a *PanicError with the original value
// (MustJoin re-panics with it). Pool lifecycle failures are ErrPoolClosed,
// ErrPoolShutdown and *SpawnError. A join whose context ends first returns an
// error matching ErrWaitAbandoned; the closure itself is never interrupted.
//
// Outside a coroutine, Join blocks the calling goroutine instead.
package offload
