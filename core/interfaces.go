package core

import (
	"context"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when an offloaded closure or a coroutine panics.
// The panic is still delivered to the joiner; the handler only observes it.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: Background context for pool workers, the coroutine context for schedulers
	// - ownerName: The pool or scheduler where the panic occurred
	// - workerID: The pool worker ID, -1 for coroutines
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, ownerName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panic information through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic and its stack at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, ownerName string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("owner", ownerName),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting offload metrics.
// Methods should be non-blocking and fast; they run on worker threads.
type Metrics interface {
	// RecordTaskDuration records how long a closure ran on its worker.
	RecordTaskDuration(poolName string, duration time.Duration)

	// RecordTaskWait records how long a task sat in the queue before a worker claimed it.
	RecordTaskWait(poolName string, wait time.Duration)

	// RecordTaskPanic records that a closure panicked.
	RecordTaskPanic(poolName string, panicInfo any)

	// RecordQueueDepth records the current queue depth.
	RecordQueueDepth(poolName string, depth int)

	// RecordTaskRejected records that a submission was refused.
	RecordTaskRejected(poolName string, reason string)

	// RecordWorkerCount records the live worker count after growth or retirement.
	RecordWorkerCount(poolName string, count int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskWait(poolName string, wait time.Duration)         {}
func (m *NilMetrics) RecordTaskPanic(poolName string, panicInfo any)             {}
func (m *NilMetrics) RecordQueueDepth(poolName string, depth int)                {}
func (m *NilMetrics) RecordTaskRejected(poolName string, reason string)          {}
func (m *NilMetrics) RecordWorkerCount(poolName string, count int)               {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// Rejection reasons passed to RejectedTaskHandler and Metrics.
const (
	RejectReasonClosed      = "closed"
	RejectReasonSpawnFailed = "spawn_failed"
	RejectReasonShutdown    = "shutdown"
)

// RejectedTaskHandler is called when a task will not run:
// - Submit after shutdown began ("closed")
// - No worker could be spawned to run it ("spawn_failed")
// - Still queued when the pool shut down ("shutdown")
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(poolName string, taskID TaskID, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks at warn level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(poolName string, taskID TaskID, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("task rejected", F("pool", poolName), F("task", taskID), F("reason", reason))
}

// =============================================================================
// ThreadPoolConfig: Configuration for ThreadPool
// =============================================================================

// ThreadPoolConfig holds sizing and handler options for ThreadPool.
// All handlers are optional; nil fields are replaced with defaults.
type ThreadPoolConfig struct {
	// MinWorkers threads are started eagerly and never retired.
	MinWorkers int

	// MaxWorkers bounds the number of live worker threads. Defaults to runtime.NumCPU().
	MaxWorkers int

	// IdleTimeout retires a worker above MinWorkers after this long without work.
	// Zero keeps every spawned worker until shutdown.
	IdleTimeout time.Duration

	// HistoryCapacity bounds the execution history kept for RecentTasks.
	HistoryCapacity int

	// ThreadInit runs on each new worker's locked OS thread before it accepts work.
	// The returned state stays with that worker and is handed to every state
	// task it runs. A non-nil error aborts the spawn and surfaces as a SpawnError.
	ThreadInit func(workerID int) (any, error)

	// ThreadExit runs on the worker's OS thread right before it exits, with the
	// state ThreadInit returned.
	ThreadExit func(workerID int, state any)

	// PanicHandler is called when a closure panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics records pool metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is refused. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger receives lifecycle logs. Defaults to DefaultLogger.
	Logger Logger

	// Tracer starts the join spans. Defaults to the global OpenTelemetry provider.
	Tracer trace.Tracer
}

// DefaultThreadPoolConfig returns a config sized to the machine with default handlers.
func DefaultThreadPoolConfig() ThreadPoolConfig {
	cfg := ThreadPoolConfig{}
	cfg.applyDefaults()
	return cfg
}

// Validate rejects inconsistent sizing.
func (c ThreadPoolConfig) Validate() error {
	if c.MinWorkers < 0 {
		return errors.Errorf("min workers must not be negative, got %d", c.MinWorkers)
	}
	if c.MaxWorkers < 0 {
		return errors.Errorf("max workers must not be negative, got %d", c.MaxWorkers)
	}
	if c.MaxWorkers > 0 && c.MinWorkers > c.MaxWorkers {
		return errors.Errorf("min workers (%d) exceeds max workers (%d)", c.MinWorkers, c.MaxWorkers)
	}
	if c.IdleTimeout < 0 {
		return errors.Errorf("idle timeout must not be negative, got %v", c.IdleTimeout)
	}
	return nil
}

func (c *ThreadPoolConfig) applyDefaults() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = max(runtime.NumCPU(), c.MinWorkers)
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = defaultTaskHistoryCapacity
	}
	if c.Logger == nil {
		c.Logger = NewDefaultLogger()
	}
	if c.PanicHandler == nil {
		c.PanicHandler = &DefaultPanicHandler{Logger: c.Logger}
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	if c.RejectedTaskHandler == nil {
		c.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: c.Logger}
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(TracerName)
	}
}

// TracerName is the instrumentation scope used for join spans.
const TracerName = "github.com/Swind/go-offload"
