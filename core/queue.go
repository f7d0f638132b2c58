package core

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// PopResult tells a worker why Pop returned.
type PopResult int

const (
	// PopTask: a task was dequeued.
	PopTask PopResult = iota
	// PopClosed: the queue was closed.
	PopClosed
	// PopIdle: no task arrived within the idle timeout.
	PopIdle
	// PopStopped: the caller's stop channel fired.
	PopStopped
)

// TaskQueue is the handoff between submitters and worker threads.
//
// Push never blocks. Pop blocks the worker until a task arrives, the queue is
// closed, the idle timeout passes, or stop fires. Each pushed task is handed
// to exactly one Pop caller, or returned by Close.
type TaskQueue struct {
	mu     sync.Mutex
	tasks  *queue.Queue
	closed bool

	signal chan struct{}
	done   chan struct{}
}

// NewTaskQueue creates an open queue. wakeups sizes the signal buffer and
// should be at least the maximum number of concurrent poppers.
func NewTaskQueue(wakeups int) *TaskQueue {
	if wakeups < 1 {
		wakeups = 1
	}
	return &TaskQueue{
		tasks:  queue.New(),
		signal: make(chan struct{}, wakeups),
		done:   make(chan struct{}),
	}
}

// Push enqueues t. It fails only with ErrQueueClosed.
func (q *TaskQueue) Push(t *Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.tasks.Add(t)
	q.mu.Unlock()

	q.notify()
	return nil
}

// Pop waits for the next task. idle <= 0 waits without a timeout.
func (q *TaskQueue) Pop(stop <-chan struct{}, idle time.Duration) (*Task, PopResult) {
	var timeout <-chan time.Time
	if idle > 0 {
		timer := time.NewTimer(idle)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		t, more, closed := q.tryPop()
		if closed {
			return nil, PopClosed
		}
		if t != nil {
			if more {
				// Pass the wakeup on so a backlog never waits on a dropped signal.
				q.notify()
			}
			return t, PopTask
		}

		select {
		case <-q.signal:
		case <-q.done:
			return nil, PopClosed
		case <-stop:
			return nil, PopStopped
		case <-timeout:
			return nil, PopIdle
		}
	}
}

func (q *TaskQueue) tryPop() (t *Task, more bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, false, true
	}
	if q.tasks.Length() == 0 {
		return nil, false, false
	}
	t = q.tasks.Remove().(*Task)
	return t, q.tasks.Length() > 0, false
}

func (q *TaskQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
		// Signal buffer full; a woken popper will re-signal while work remains.
	}
}

// Close closes the queue and returns every task that was still waiting.
// Only the first call returns tasks.
func (q *TaskQueue) Close() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)

	drained := make([]*Task, 0, q.tasks.Length())
	for q.tasks.Length() > 0 {
		drained = append(drained, q.tasks.Remove().(*Task))
	}
	// Release the ring buffer and any closure references it still holds.
	q.tasks = queue.New()
	return drained
}

// Drain removes and returns every waiting task but leaves the queue open.
func (q *TaskQueue) Drain() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := make([]*Task, 0, q.tasks.Length())
	for q.tasks.Length() > 0 {
		drained = append(drained, q.tasks.Remove().(*Task))
	}
	return drained
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Length()
}

// IsClosed reports whether Close has been called.
func (q *TaskQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
