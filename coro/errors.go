package coro

import (
	"github.com/pkg/errors"

	"github.com/Swind/go-offload/core"
)

var (
	// ErrSchedulerClosed is returned by Spawn after Stop, and by any suspension
	// point of a coroutine that Stop released.
	ErrSchedulerClosed = errors.New("coroutine scheduler closed")

	// ErrForeignScheduler is returned when ctx belongs to a coroutine of another scheduler.
	ErrForeignScheduler = errors.New("context belongs to a different scheduler")

	// ErrNotInCoroutine is returned when ctx does not belong to a running coroutine.
	ErrNotInCoroutine = core.ErrNotInCoroutine

	errNilFunc = errors.New("coroutine function is nil")
)
