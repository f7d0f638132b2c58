package offload

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/Swind/go-offload/core"
)

// =============================================================================
// Global Thread Pool Helper (Singleton)
// =============================================================================

// DefaultPoolName is the id of the process-wide pool used by Join.
const DefaultPoolName = "offload-default"

// ErrAlreadyConfigured is returned by Configure and InitGlobalThreadPool once
// the default pool exists.
var ErrAlreadyConfigured = errors.New("default thread pool already configured")

var (
	globalThreadPool *core.ThreadPool
	globalConfig     = core.ThreadPoolConfig{}
	globalMu         sync.Mutex
)

// Configure sets the configuration the default pool is created with.
// It must be called before the first Join; afterwards it returns ErrAlreadyConfigured.
func Configure(cfg core.ThreadPoolConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		return ErrAlreadyConfigured
	}
	globalConfig = cfg
	return nil
}

// InitGlobalThreadPool creates and starts the default pool from cfg.
func InitGlobalThreadPool(cfg core.ThreadPoolConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		return ErrAlreadyConfigured
	}

	pool, err := core.NewThreadPool(DefaultPoolName, cfg)
	if err != nil {
		return err
	}
	if err := pool.Start(context.Background()); err != nil {
		return err
	}
	globalConfig = cfg
	globalThreadPool = pool
	return nil
}

// GetGlobalThreadPool returns the default pool, creating it on first use.
// The pool starts lazily with its first submission.
func GetGlobalThreadPool() *core.ThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool == nil {
		pool, err := core.NewThreadPool(DefaultPoolName, globalConfig)
		if err != nil {
			// Configure validated globalConfig already.
			panic(errors.Wrap(err, "create default thread pool"))
		}
		globalThreadPool = pool
	}
	return globalThreadPool
}

// ShutdownGlobalThreadPool shuts the default pool down. A later Join creates
// a fresh pool from the last configuration.
func ShutdownGlobalThreadPool() {
	globalMu.Lock()
	pool := globalThreadPool
	globalThreadPool = nil
	globalMu.Unlock()

	if pool != nil {
		pool.Shutdown()
	}
}
