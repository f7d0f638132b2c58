package core

import "time"

// TaskExecutionRecord captures one finished offloaded task.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	PoolName   string
	WorkerID   int
	ThreadID   int
	QueuedFor  time.Duration
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// WorkerState is the lifecycle state of one worker thread.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerRunning
	WorkerTerminating
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerRunning:
		return "running"
	case WorkerTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// WorkerInfo is a snapshot of one worker thread record.
type WorkerInfo struct {
	ID          int
	ThreadID    int
	State       WorkerState
	StartedAt   time.Time
	TasksRun    uint64
	CurrentTask TaskID
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID          string
	Workers     int
	IdleWorkers int
	MinWorkers  int
	MaxWorkers  int
	Queued      int
	Active      int
	Completed   uint64
	Panicked    uint64
	Rejected    uint64
	Spawned     uint64
	Retired     uint64
	Running     bool
	Closed      bool
}
