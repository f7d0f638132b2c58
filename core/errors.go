package core

import (
	"fmt"
	"runtime/debug"

	"github.com/pkg/errors"
)

var (
	// ErrQueueClosed is returned by TaskQueue.Push after the queue was closed.
	ErrQueueClosed = errors.New("task queue closed")

	// ErrPoolClosed is returned by Submit once shutdown has begun.
	ErrPoolClosed = errors.New("thread pool closed")

	// ErrNilPool is returned when a join is given no pool.
	ErrNilPool = errors.New("nil thread pool")

	// ErrPoolShutdown is delivered to tasks that were still queued when the pool shut down.
	ErrPoolShutdown = errors.New("thread pool shut down before task ran")

	// ErrShutdownTimeout is returned by ShutdownGraceful when work was still pending at the deadline.
	ErrShutdownTimeout = errors.New("thread pool shutdown timed out")

	// ErrSpawnFailed is the sentinel wrapped by every SpawnError.
	ErrSpawnFailed = errors.New("worker thread spawn failed")

	// ErrResultConsumed is returned when a completion is read a second time.
	ErrResultConsumed = errors.New("task result already consumed")

	// ErrResultNotReady is returned when a completion is read before its task finished.
	ErrResultNotReady = errors.New("task result not ready")

	// ErrWaitAbandoned is returned by a join whose context ended before the task finished.
	// The task itself keeps running on its worker.
	ErrWaitAbandoned = errors.New("join abandoned before task finished")

	// ErrStateType fails a state task whose worker holds state of another type.
	ErrStateType = errors.New("worker thread state has unexpected type")

	// ErrNotInCoroutine is returned by scheduler operations called outside a coroutine.
	ErrNotInCoroutine = errors.New("not called from a coroutine")
)

// PanicError carries a panic recovered from an offloaded closure back to the joiner.
type PanicError struct {
	// Value is the value passed to panic.
	Value any
	// Stack is the worker stack captured at the point of recovery.
	Stack []byte
	// TaskID identifies the task that panicked.
	TaskID TaskID
	// WorkerID is the pool-local worker that ran the task, -1 when not run on a pool worker.
	WorkerID int
}

// NewPanicError captures the current stack for a recovered panic value.
func NewPanicError(value any, taskID TaskID, workerID int) *PanicError {
	return &PanicError{
		Value:    value,
		Stack:    debug.Stack(),
		TaskID:   taskID,
		WorkerID: workerID,
	}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("offloaded task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Repanic re-raises the original panic value in the caller's goroutine.
func (e *PanicError) Repanic() {
	panic(e.Value)
}

// SpawnError reports that a worker thread could not be brought up.
type SpawnError struct {
	WorkerID int
	Cause    error
}

func (e *SpawnError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("spawn worker %d: %v", e.WorkerID, ErrSpawnFailed)
	}
	return fmt.Sprintf("spawn worker %d: %v", e.WorkerID, e.Cause)
}

// Is reports ErrSpawnFailed so callers can match any SpawnError by sentinel.
func (e *SpawnError) Is(target error) bool {
	return target == ErrSpawnFailed
}

func (e *SpawnError) Unwrap() error {
	return e.Cause
}
