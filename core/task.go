package core

import (
	"reflect"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TaskID uniquely identifies one offloaded task.
type TaskID string

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.NewString())
}

func (id TaskID) String() string {
	return string(id)
}

// IsZero reports whether the id was never assigned.
func (id TaskID) IsZero() bool {
	return id == ""
}

// Task is a single-use unit of work flowing from the bridge to exactly one worker.
// The typed result is delivered through the Completion returned by NewTask.
type Task struct {
	ID          TaskID
	Name        string
	SubmittedAt time.Time

	// run executes the closure with the worker's thread state and publishes its
	// result; swapped to nil on first use.
	run atomic.Pointer[func(workerID int, state any) *PanicError]
	// abort publishes err without running the closure.
	abort func(err error) bool
}

// NewTask wraps fn into a Task and the Completion that will carry its result.
// name is optional; when empty it is resolved from the closure's symbol.
func NewTask[R any](name string, fn func() (R, error)) (*Task, *Completion[R]) {
	var run func(any) (R, error)
	if fn != nil {
		run = func(any) (R, error) { return fn() }
	}
	return newTask(resolveTaskName(fn, name), run)
}

// NewStateTask is NewTask for closures that use the state ThreadInit built for
// the worker running them. A worker without state passes the zero S; state of
// another type fails the task with ErrStateType.
func NewStateTask[S, R any](name string, fn func(S) (R, error)) (*Task, *Completion[R]) {
	var run func(any) (R, error)
	if fn != nil {
		run = func(state any) (R, error) {
			var s S
			if state != nil {
				typed, ok := state.(S)
				if !ok {
					var zero R
					return zero, errors.Wrapf(ErrStateType, "have %T, want %T", state, s)
				}
				s = typed
			}
			return fn(s)
		}
	}
	return newTask(resolveTaskName(fn, name), run)
}

func newTask[R any](name string, fn func(state any) (R, error)) (*Task, *Completion[R]) {
	c := newCompletion[R]()
	t := &Task{
		ID:   GenerateTaskID(),
		Name: name,
	}

	run := func(workerID int, state any) (perr *PanicError) {
		var (
			value R
			err   error
		)
		defer func() {
			if rec := recover(); rec != nil {
				perr = NewPanicError(rec, t.ID, workerID)
				var zero R
				c.complete(zero, perr)
				return
			}
			c.complete(value, err)
		}()
		if fn == nil {
			panic("offload: nil closure")
		}
		value, err = fn(state)
		return nil
	}
	t.run.Store(&run)
	t.abort = func(err error) bool {
		var zero R
		return c.complete(zero, err)
	}
	return t, c
}

// Execute runs the closure on the calling goroutine and publishes its result.
// state is the worker's ThreadInit value, nil when it has none. It reports the
// recovered panic, if any, and whether this call ran the closure; a Task only
// ever runs once.
func (t *Task) Execute(workerID int, state any) (*PanicError, bool) {
	run := t.run.Swap(nil)
	if run == nil {
		return nil, false
	}
	return (*run)(workerID, state), true
}

// Abort fails the task with err if it has not produced a result yet.
func (t *Task) Abort(err error) bool {
	if t.run.Swap(nil) == nil {
		return false
	}
	return t.abort(err)
}

// FuncName returns the symbol name of fn, or "anonymous" when it has none.
func FuncName(fn any) string {
	return resolveTaskName(fn, "")
}

func resolveTaskName(fn any, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fn == nil {
		return "anonymous"
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "anonymous"
	}

	f := runtime.FuncForPC(v.Pointer())
	if f == nil || f.Name() == "" {
		return "anonymous"
	}
	return f.Name()
}
