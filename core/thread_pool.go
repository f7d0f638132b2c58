package core

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ThreadPool runs offloaded closures on a bounded set of dedicated OS threads.
//
// Workers are spawned on demand: Submit starts a new thread when no idle worker
// can take the task and fewer than MaxWorkers are live. Workers above
// MinWorkers retire after IdleTimeout without work.
//
// Callers never block on the pool; results flow back through the Completion
// created alongside each Task.
type ThreadPool struct {
	id      string
	cfg     ThreadPoolConfig
	queue   *TaskQueue
	history *ring[TaskExecutionRecord]

	mu      sync.Mutex
	workers map[int]*worker
	nextID  int
	live    int // running workers plus reserved spawns
	idle    int // registered workers waiting in Pop
	started bool
	closed  bool

	wg        sync.WaitGroup
	stopWatch func() bool

	active    atomic.Int32
	completed atomic.Uint64
	panicked  atomic.Uint64
	rejected  atomic.Uint64
	spawned   atomic.Uint64
	retired   atomic.Uint64

	shutdownOnce sync.Once
}

// NewThreadPool creates a pool. Nothing runs until Start or the first Submit.
func NewThreadPool(id string, cfg ThreadPoolConfig) (*ThreadPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &ThreadPool{
		id:      id,
		cfg:     cfg,
		queue:   NewTaskQueue(cfg.MaxWorkers),
		history: newExecutionHistory(cfg.HistoryCapacity),
		workers: make(map[int]*worker),
	}, nil
}

// ID returns the pool name used in logs and metrics.
func (p *ThreadPool) ID() string { return p.id }

// Config returns the effective configuration, defaults applied.
func (p *ThreadPool) Config() ThreadPoolConfig { return p.cfg }

// Start spawns MinWorkers threads. Cancelling ctx shuts the pool down.
// Calling Start on a running pool is a no-op; a failed Start leaves the pool closed.
func (p *ThreadPool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	ids := make([]int, 0, p.cfg.MinWorkers)
	for i := 0; i < p.cfg.MinWorkers; i++ {
		ids = append(ids, p.reserveLocked())
	}
	if ctx != nil && ctx.Done() != nil {
		p.stopWatch = context.AfterFunc(ctx, p.Shutdown)
	}
	p.mu.Unlock()

	for i, id := range ids {
		if err := p.spawn(id); err != nil {
			p.mu.Lock()
			p.live -= len(ids) - i
			p.mu.Unlock()
			p.cfg.Logger.Error("thread pool failed to start",
				F("pool", p.id), F("worker", id), F("error", err))
			p.Shutdown()
			return err
		}
	}

	p.cfg.Logger.Info("thread pool started",
		F("pool", p.id), F("min", p.cfg.MinWorkers), F("max", p.cfg.MaxWorkers))
	return nil
}

// Submit queues t for execution. It never waits for the task to run.
//
// ErrPoolClosed is returned once shutdown has begun. A *SpawnError is returned
// when a thread was needed, could not be initialised, and no other worker is
// live to pick the task up; the task is failed with the same error.
func (p *ThreadPool) Submit(t *Task) error {
	if !p.isStarted() {
		if err := p.Start(context.Background()); err != nil {
			reason := RejectReasonSpawnFailed
			if err == ErrPoolClosed {
				reason = RejectReasonClosed
			}
			p.reject(t, reason)
			t.Abort(err)
			return err
		}
	}

	t.SubmittedAt = time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.reject(t, RejectReasonClosed)
		return ErrPoolClosed
	}
	if err := p.queue.Push(t); err != nil {
		p.mu.Unlock()
		p.reject(t, RejectReasonClosed)
		return ErrPoolClosed
	}
	spawnID := -1
	if p.idle < p.queue.Len() && p.live < p.cfg.MaxWorkers {
		spawnID = p.reserveLocked()
	}
	depth := p.queue.Len()
	p.mu.Unlock()

	p.cfg.Metrics.RecordQueueDepth(p.id, depth)

	if spawnID >= 0 {
		if err := p.spawn(spawnID); err != nil {
			return p.spawnFailed(t, err)
		}
	}
	return nil
}

// spawnFailed releases the reservation. If no worker is left, every queued
// task is failed with err since nothing would ever run it.
func (p *ThreadPool) spawnFailed(t *Task, err error) error {
	p.mu.Lock()
	p.live--
	if err == ErrPoolClosed {
		// Shutdown drains the queue itself, but ShutdownGraceful leaves it open
		// for live workers. With none left, nothing would ever run it.
		var stranded []*Task
		if p.live == 0 {
			stranded = p.queue.Drain()
		}
		p.mu.Unlock()
		for _, s := range stranded {
			if s.Abort(ErrPoolShutdown) {
				p.reject(s, RejectReasonShutdown)
			}
		}
		return nil
	}
	var stranded []*Task
	if p.live == 0 {
		stranded = p.queue.Drain()
	}
	p.mu.Unlock()

	own := false
	for _, s := range stranded {
		if s == t {
			own = true
		}
		if s.Abort(err) {
			p.reject(s, RejectReasonSpawnFailed)
		}
	}
	if own {
		return err
	}
	if t == nil {
		p.cfg.Logger.Warn("worker spawn failed", F("pool", p.id), F("error", err))
		return nil
	}

	p.cfg.Logger.Warn("worker spawn failed, task left to live workers",
		F("pool", p.id), F("task", t.ID), F("error", err))
	return nil
}

func (p *ThreadPool) reject(t *Task, reason string) {
	p.rejected.Add(1)
	p.cfg.Metrics.RecordTaskRejected(p.id, reason)
	p.cfg.RejectedTaskHandler.HandleRejectedTask(p.id, t.ID, reason)
}

func (p *ThreadPool) reserveLocked() int {
	id := p.nextID
	p.nextID++
	p.live++
	return id
}

// spawn starts worker id and waits for its thread to finish ThreadInit.
// wg.Add happens under mu so it never races with Shutdown's Wait.
func (p *ThreadPool) spawn(id int) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	w := newWorker(id, p)
	go w.run()

	if err := <-w.ready; err != nil {
		return &SpawnError{WorkerID: id, Cause: err}
	}

	p.spawned.Add(1)
	p.cfg.Metrics.RecordWorkerCount(p.id, p.WorkerCount())
	p.cfg.Logger.Debug("worker started", F("pool", p.id), F("worker", id), F("thread", w.threadID))
	return nil
}

func (p *ThreadPool) register(w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w.state.Store(int32(WorkerIdle))
	p.workers[w.id] = w
	p.idle++
}

func (p *ThreadPool) unregister(w *worker) {
	p.mu.Lock()
	w.state.Store(int32(WorkerTerminating))
	delete(p.workers, w.id)
	p.idle--
	p.live--
	count := len(p.workers)
	p.mu.Unlock()

	p.cfg.Metrics.RecordWorkerCount(p.id, count)
}

func (p *ThreadPool) markBusy(w *worker) {
	p.mu.Lock()
	w.state.Store(int32(WorkerRunning))
	p.idle--
	spawnID := -1
	if !p.closed && p.idle < p.queue.Len() && p.live < p.cfg.MaxWorkers {
		// A submitter may have counted w as idle between its Pop and now.
		spawnID = p.reserveLocked()
	}
	p.mu.Unlock()
	p.active.Add(1)

	if spawnID >= 0 {
		go p.grow(spawnID)
	}
}

func (p *ThreadPool) grow(id int) {
	if err := p.spawn(id); err != nil {
		p.spawnFailed(nil, err)
	}
}

func (p *ThreadPool) markIdle(w *worker) {
	p.active.Add(-1)
	p.mu.Lock()
	w.state.Store(int32(WorkerIdle))
	p.idle++
	p.mu.Unlock()
}

// tryRetire removes an idle worker if the pool stays at or above MinWorkers.
func (p *ThreadPool) tryRetire(w *worker) bool {
	p.mu.Lock()
	if p.live <= p.cfg.MinWorkers || p.queue.Len() > 0 {
		p.mu.Unlock()
		return false
	}
	w.state.Store(int32(WorkerTerminating))
	delete(p.workers, w.id)
	p.idle--
	p.live--
	count := len(p.workers)
	p.mu.Unlock()

	p.retired.Add(1)
	p.cfg.Metrics.RecordWorkerCount(p.id, count)
	p.cfg.Logger.Debug("worker retired", F("pool", p.id), F("worker", w.id))
	return true
}

// Shutdown stops accepting work, fails every queued task with ErrPoolShutdown,
// and waits for the running closures and their threads to finish.
// It is idempotent. It must not be called from inside an offloaded closure.
func (p *ThreadPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		drained := p.queue.Close()
		stopWatch := p.stopWatch
		p.mu.Unlock()

		for _, t := range drained {
			if t.Abort(ErrPoolShutdown) {
				p.reject(t, RejectReasonShutdown)
			}
		}

		if stopWatch != nil {
			stopWatch()
		}
		p.wg.Wait()

		p.cfg.Logger.Info("thread pool stopped",
			F("pool", p.id), F("completed", p.completed.Load()), F("aborted", len(drained)))
	})
}

// ShutdownGraceful refuses new work, lets the queue drain for up to timeout,
// then calls Shutdown. It returns ErrShutdownTimeout if tasks were still queued
// or running when the timeout expired.
func (p *ThreadPool) ShutdownGraceful(timeout time.Duration) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var err error
	for p.queue.Len() > 0 || p.active.Load() > 0 {
		if !time.Now().Before(deadline) {
			err = ErrShutdownTimeout
			break
		}
		<-ticker.C
	}

	p.Shutdown()
	return err
}

func (p *ThreadPool) isStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// IsRunning reports whether the pool has started and not begun shutting down.
func (p *ThreadPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.closed
}

// IsClosed reports whether shutdown has begun.
func (p *ThreadPool) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// WorkerCount returns the number of live worker threads.
func (p *ThreadPool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// QueuedTaskCount returns the number of tasks waiting for a worker.
func (p *ThreadPool) QueuedTaskCount() int {
	return p.queue.Len()
}

// ActiveTaskCount returns the number of closures currently running.
func (p *ThreadPool) ActiveTaskCount() int {
	return int(p.active.Load())
}

// Workers returns a snapshot of every live worker, ordered by ID.
func (p *ThreadPool) Workers() []WorkerInfo {
	p.mu.Lock()
	infos := make([]WorkerInfo, 0, len(p.workers))
	for _, w := range p.workers {
		infos = append(infos, w.info())
	}
	p.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Stats returns a point-in-time snapshot of the pool.
func (p *ThreadPool) Stats() PoolStats {
	p.mu.Lock()
	stats := PoolStats{
		ID:          p.id,
		Workers:     len(p.workers),
		IdleWorkers: p.idle,
		MinWorkers:  p.cfg.MinWorkers,
		MaxWorkers:  p.cfg.MaxWorkers,
		Running:     p.started && !p.closed,
		Closed:      p.closed,
	}
	p.mu.Unlock()

	stats.Queued = p.queue.Len()
	stats.Active = int(p.active.Load())
	stats.Completed = p.completed.Load()
	stats.Panicked = p.panicked.Load()
	stats.Rejected = p.rejected.Load()
	stats.Spawned = p.spawned.Load()
	stats.Retired = p.retired.Load()
	return stats
}

// RecentTasks returns up to limit finished tasks, newest first.
func (p *ThreadPool) RecentTasks(limit int) []TaskExecutionRecord {
	return p.history.Recent(limit)
}

// LastTask returns the most recently finished task.
func (p *ThreadPool) LastTask() (TaskExecutionRecord, bool) {
	return p.history.Last()
}

// IdleWorkerCount returns the number of workers waiting for a task.
func (p *ThreadPool) IdleWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle
}
