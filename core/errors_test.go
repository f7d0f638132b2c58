package core

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSpawnError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("no GPU context")
	err := error(&SpawnError{WorkerID: 2, Cause: cause})

	if !errors.Is(err, ErrSpawnFailed) {
		t.Error("errors.Is(err, ErrSpawnFailed) = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if !strings.Contains(err.Error(), "worker 2") {
		t.Errorf("Error() = %q, want worker id", err.Error())
	}

	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) || spawnErr.WorkerID != 2 {
		t.Errorf("errors.As = %v, want WorkerID 2", spawnErr)
	}
}

func TestPanicError_Unwrap(t *testing.T) {
	withErr := NewPanicError(io.ErrUnexpectedEOF, "t1", 0)
	if !errors.Is(withErr, io.ErrUnexpectedEOF) {
		t.Error("PanicError with error value should unwrap to it")
	}

	withString := NewPanicError("boom", "t2", 1)
	if withString.Unwrap() != nil {
		t.Error("PanicError with string value should not unwrap")
	}
	if withString.Error() != "offloaded task panicked: boom" {
		t.Errorf("Error() = %q", withString.Error())
	}
}

func TestPanicError_Repanic(t *testing.T) {
	perr := NewPanicError("boom", "t", 0)

	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("recovered %v, want boom", r)
		}
	}()
	perr.Repanic()
}
