package core

import (
	"bytes"
	"context"
	"log"
	"runtime"
	"strings"
	"testing"
)

// TestThreadPoolConfig_Validate verifies sizing checks
func TestThreadPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ThreadPoolConfig
		wantErr bool
	}{
		{name: "zero value", cfg: ThreadPoolConfig{}},
		{name: "min equals max", cfg: ThreadPoolConfig{MinWorkers: 2, MaxWorkers: 2}},
		{name: "negative min", cfg: ThreadPoolConfig{MinWorkers: -1}, wantErr: true},
		{name: "negative max", cfg: ThreadPoolConfig{MaxWorkers: -1}, wantErr: true},
		{name: "min above max", cfg: ThreadPoolConfig{MinWorkers: 3, MaxWorkers: 2}, wantErr: true},
		{name: "negative idle", cfg: ThreadPoolConfig{IdleTimeout: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestDefaultThreadPoolConfig verifies every handler is filled in
// Given: An empty config
// When: Defaults are applied
// Then: MaxWorkers matches the CPU count and no handler is nil
func TestDefaultThreadPoolConfig(t *testing.T) {
	cfg := DefaultThreadPoolConfig()

	if cfg.MaxWorkers != runtime.NumCPU() {
		t.Errorf("MaxWorkers = %d, want %d", cfg.MaxWorkers, runtime.NumCPU())
	}
	if cfg.HistoryCapacity != defaultTaskHistoryCapacity {
		t.Errorf("HistoryCapacity = %d, want %d", cfg.HistoryCapacity, defaultTaskHistoryCapacity)
	}
	if cfg.Logger == nil || cfg.PanicHandler == nil || cfg.Metrics == nil ||
		cfg.RejectedTaskHandler == nil || cfg.Tracer == nil {
		t.Errorf("DefaultThreadPoolConfig() left a nil handler: %+v", cfg)
	}
}

func TestThreadPoolConfig_MaxFollowsMin(t *testing.T) {
	cfg := ThreadPoolConfig{MinWorkers: runtime.NumCPU() + 3}
	cfg.applyDefaults()

	if cfg.MaxWorkers != cfg.MinWorkers {
		t.Errorf("MaxWorkers = %d, want %d", cfg.MaxWorkers, cfg.MinWorkers)
	}
}

// TestDefaultPanicHandler_Logs verifies the panic and owner reach the log
func TestDefaultPanicHandler_Logs(t *testing.T) {
	var buf bytes.Buffer
	h := &DefaultPanicHandler{Logger: NewDefaultLoggerWith(log.New(&buf, "", 0))}

	h.HandlePanic(context.Background(), "pool-a", 3, "boom", []byte("stack"))

	out := buf.String()
	for _, want := range []string{"[ERROR] task panicked", "owner: pool-a", "worker: 3", "panic: boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log = %q, want it to contain %q", out, want)
		}
	}
}

func TestDefaultRejectedTaskHandler_Logs(t *testing.T) {
	var buf bytes.Buffer
	h := &DefaultRejectedTaskHandler{Logger: NewDefaultLoggerWith(log.New(&buf, "", 0))}

	h.HandleRejectedTask("pool-a", TaskID("t-1"), RejectReasonShutdown)

	out := buf.String()
	if !strings.Contains(out, "[WARN] task rejected") || !strings.Contains(out, "reason: shutdown") {
		t.Errorf("log = %q, want rejected task with reason", out)
	}
}

func TestNilMetrics_IsSafe(t *testing.T) {
	var m Metrics = &NilMetrics{}

	m.RecordTaskDuration("p", 0)
	m.RecordTaskWait("p", 0)
	m.RecordTaskPanic("p", nil)
	m.RecordQueueDepth("p", 0)
	m.RecordTaskRejected("p", RejectReasonClosed)
	m.RecordWorkerCount("p", 0)
}
