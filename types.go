package offload

import (
	"github.com/pkg/errors"

	"github.com/Swind/go-offload/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the offload package for most use cases.

// ThreadPool runs offloaded closures on dedicated OS threads
type ThreadPool = core.ThreadPool

// ThreadPoolConfig sizes a ThreadPool and wires its handlers
type ThreadPoolConfig = core.ThreadPoolConfig

// Scheduler is the capability set Join needs from a coroutine scheduler
type Scheduler = core.Scheduler

// ResumeToken identifies one suspension of one coroutine
type ResumeToken = core.ResumeToken

// PanicError carries a closure panic back to the joiner
type PanicError = core.PanicError

// SpawnError reports a worker thread that could not be initialised
type SpawnError = core.SpawnError

// PoolStats is a snapshot of a ThreadPool
type PoolStats = core.PoolStats

// Logger and Field for structured logging
type (
	Logger = core.Logger
	Field  = core.Field
)

// Errors
var (
	ErrPoolClosed      = core.ErrPoolClosed
	ErrPoolShutdown    = core.ErrPoolShutdown
	ErrQueueClosed     = core.ErrQueueClosed
	ErrSpawnFailed     = core.ErrSpawnFailed
	ErrResultConsumed  = core.ErrResultConsumed
	ErrResultNotReady  = core.ErrResultNotReady
	ErrWaitAbandoned   = core.ErrWaitAbandoned
	ErrNotInCoroutine  = core.ErrNotInCoroutine
	ErrShutdownTimeout = core.ErrShutdownTimeout
	ErrNilPool         = core.ErrNilPool
	ErrStateType       = core.ErrStateType
)

// NewThreadPool creates a pool that starts with its first submission.
func NewThreadPool(id string, cfg ThreadPoolConfig) (*ThreadPool, error) {
	return core.NewThreadPool(id, cfg)
}

// DefaultThreadPoolConfig returns a config sized to the machine.
func DefaultThreadPoolConfig() ThreadPoolConfig {
	return core.DefaultThreadPoolConfig()
}

// WithScheduler binds s to ctx so Join suspends coroutines of s.
var WithScheduler = core.WithScheduler

// AsPanicError reports whether err carries a closure panic.
func AsPanicError(err error) (*PanicError, bool) {
	var perr *PanicError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
