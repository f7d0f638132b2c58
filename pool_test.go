package offload

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Swind/go-offload/core"
)

// resetGlobalPool gives each test a fresh default pool.
func resetGlobalPool(t *testing.T) {
	t.Helper()
	ShutdownGlobalThreadPool()
	globalMu.Lock()
	globalConfig = core.ThreadPoolConfig{Logger: core.NewNoOpLogger()}
	globalMu.Unlock()
	t.Cleanup(ShutdownGlobalThreadPool)
}

// TestGetGlobalThreadPool_Lazy verifies the default pool is created once on demand
// Given: No default pool
// When: GetGlobalThreadPool is called concurrently
// Then: Every caller sees the same pool, named DefaultPoolName, not yet started
func TestGetGlobalThreadPool_Lazy(t *testing.T) {
	// Arrange
	resetGlobalPool(t)

	// Act
	pools := make([]*ThreadPool, 8)
	var wg sync.WaitGroup
	for i := range pools {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pools[i] = GetGlobalThreadPool()
		}()
	}
	wg.Wait()

	// Assert
	for i, p := range pools {
		if p != pools[0] {
			t.Fatalf("pools[%d] differs from pools[0]", i)
		}
	}
	if pools[0].ID() != DefaultPoolName {
		t.Errorf("ID() = %q, want %q", pools[0].ID(), DefaultPoolName)
	}
	if pools[0].IsRunning() {
		t.Error("default pool running before first Join")
	}
}

// TestConfigure_BeforeFirstJoin verifies Configure shapes the default pool
func TestConfigure_BeforeFirstJoin(t *testing.T) {
	resetGlobalPool(t)

	if err := Configure(ThreadPoolConfig{MinWorkers: 1, MaxWorkers: 3, Logger: core.NewNoOpLogger()}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	cfg := GetGlobalThreadPool().Config()

	if cfg.MinWorkers != 1 || cfg.MaxWorkers != 3 {
		t.Errorf("Config() = min %d max %d, want min 1 max 3", cfg.MinWorkers, cfg.MaxWorkers)
	}
	if err := Configure(ThreadPoolConfig{MaxWorkers: 8}); !errors.Is(err, ErrAlreadyConfigured) {
		t.Errorf("second Configure() error = %v, want ErrAlreadyConfigured", err)
	}
}

func TestConfigure_Invalid(t *testing.T) {
	resetGlobalPool(t)

	if err := Configure(ThreadPoolConfig{MinWorkers: 4, MaxWorkers: 1}); err == nil {
		t.Error("Configure() error = nil, want validation error")
	}
}

// TestInitGlobalThreadPool verifies eager creation and its single-use rule
func TestInitGlobalThreadPool(t *testing.T) {
	resetGlobalPool(t)

	if err := InitGlobalThreadPool(ThreadPoolConfig{MinWorkers: 2, MaxWorkers: 2, Logger: core.NewNoOpLogger()}); err != nil {
		t.Fatalf("InitGlobalThreadPool() error = %v", err)
	}
	p := GetGlobalThreadPool()

	if !p.IsRunning() || p.WorkerCount() != 2 {
		t.Errorf("pool running = %v workers = %d, want running with 2", p.IsRunning(), p.WorkerCount())
	}
	if err := InitGlobalThreadPool(ThreadPoolConfig{}); !errors.Is(err, ErrAlreadyConfigured) {
		t.Errorf("second InitGlobalThreadPool() error = %v, want ErrAlreadyConfigured", err)
	}
}

// TestShutdownGlobalThreadPool verifies idempotence and recreation
// Given: A default pool that has run a task
// When: ShutdownGlobalThreadPool is called twice and Join is called again
// Then: The old pool is closed and a new one serves the join
func TestShutdownGlobalThreadPool(t *testing.T) {
	// Arrange
	resetGlobalPool(t)
	first := GetGlobalThreadPool()
	if _, err := Join(context.Background(), func() int { return 1 }); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	// Act
	ShutdownGlobalThreadPool()
	ShutdownGlobalThreadPool()
	v, err := Join(context.Background(), func() int { return 2 })

	// Assert
	if !first.IsClosed() {
		t.Error("old pool not closed")
	}
	if err != nil || v != 2 {
		t.Errorf("Join() after restart = (%d, %v), want (2, nil)", v, err)
	}
	if GetGlobalThreadPool() == first {
		t.Error("default pool was not recreated")
	}
}
