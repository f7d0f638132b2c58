package core

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// worker is one pooled OS thread. Its goroutine locks the thread for life and
// never unlocks it, so the thread is destroyed when the worker exits instead of
// returning to the Go scheduler with whatever state ThreadInit or closures left.
type worker struct {
	id        int
	pool      *ThreadPool
	threadID  int
	startedAt time.Time

	// local is built by ThreadInit and only touched from the worker's thread.
	local any

	state    atomic.Int32
	tasksRun atomic.Uint64
	current  atomic.Value // TaskID

	// ready reports the outcome of thread initialisation to the spawner.
	ready chan error
}

func newWorker(id int, pool *ThreadPool) *worker {
	w := &worker{
		id:    id,
		pool:  pool,
		ready: make(chan error, 1),
	}
	w.current.Store(TaskID(""))
	return w
}

// run is the worker's goroutine body.
func (w *worker) run() {
	p := w.pool
	defer p.wg.Done()

	runtime.LockOSThread()

	w.threadID = currentThreadID()
	w.startedAt = time.Now()

	if err := w.initThread(); err != nil {
		w.ready <- err
		return
	}

	p.register(w)
	w.ready <- nil

	defer w.exitThread()

	for {
		task, res := p.queue.Pop(nil, p.cfg.IdleTimeout)
		switch res {
		case PopTask:
			w.execute(task)
		case PopIdle:
			if p.tryRetire(w) {
				return
			}
		default:
			p.unregister(w)
			return
		}
	}
}

func (w *worker) initThread() (err error) {
	init := w.pool.cfg.ThreadInit
	if init == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("thread init panicked: %v", rec)
		}
	}()
	local, err := init(w.id)
	if err != nil {
		return errors.Wrap(err, "thread init")
	}
	w.local = local
	return nil
}

func (w *worker) exitThread() {
	exit := w.pool.cfg.ThreadExit
	if exit == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			w.pool.cfg.Logger.Error("thread exit hook panicked",
				F("pool", w.pool.id), F("worker", w.id), F("panic", fmt.Sprint(rec)))
		}
	}()
	exit(w.id, w.local)
}

// execute runs one task to completion. The result is published, and the
// joiner woken, inside Task.Execute before any bookkeeping here.
func (w *worker) execute(t *Task) {
	p := w.pool
	p.markBusy(w)
	w.current.Store(t.ID)

	startedAt := time.Now()
	queuedFor := startedAt.Sub(t.SubmittedAt)
	perr, ran := t.Execute(w.id, w.local)
	finishedAt := time.Now()

	w.current.Store(TaskID(""))
	p.markIdle(w)

	if !ran {
		return
	}
	w.tasksRun.Add(1)
	p.completed.Add(1)

	p.cfg.Metrics.RecordTaskWait(p.id, queuedFor)
	p.cfg.Metrics.RecordTaskDuration(p.id, finishedAt.Sub(startedAt))
	if perr != nil {
		p.panicked.Add(1)
		p.cfg.Metrics.RecordTaskPanic(p.id, perr.Value)
		p.cfg.PanicHandler.HandlePanic(context.Background(), p.id, w.id, perr.Value, perr.Stack)
	}

	p.history.Add(TaskExecutionRecord{
		TaskID:     t.ID,
		Name:       t.Name,
		PoolName:   p.id,
		WorkerID:   w.id,
		ThreadID:   w.threadID,
		QueuedFor:  queuedFor,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   finishedAt.Sub(startedAt),
		Panicked:   perr != nil,
	})
}

func (w *worker) info() WorkerInfo {
	current, _ := w.current.Load().(TaskID)
	return WorkerInfo{
		ID:          w.id,
		ThreadID:    w.threadID,
		State:       WorkerState(w.state.Load()),
		StartedAt:   w.startedAt,
		TasksRun:    w.tasksRun.Load(),
		CurrentTask: current,
	}
}
