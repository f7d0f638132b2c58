package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-offload/core"
	"github.com/Swind/go-offload/coro"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SchedulerSnapshotProvider provides current coroutine scheduler snapshots.
type SchedulerSnapshotProvider interface {
	Stats() coro.SchedulerStats
}

// SnapshotPoller periodically exports pool and scheduler Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	poolQueued    *prom.GaugeVec
	poolActive    *prom.GaugeVec
	poolWorkers   *prom.GaugeVec
	poolIdle      *prom.GaugeVec
	poolCompleted *prom.GaugeVec
	poolPanicked  *prom.GaugeVec
	poolRunning   *prom.GaugeVec

	schedLive     *prom.GaugeVec
	schedReady    *prom.GaugeVec
	schedParked   *prom.GaugeVec
	schedSwitches *prom.GaugeVec
	schedClosed   *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	p := &SnapshotPoller{
		interval:   interval,
		pools:      make(map[string]PoolSnapshotProvider),
		schedulers: make(map[string]SchedulerSnapshotProvider),

		poolQueued:    gauge("pool_queued", "Queued tasks per pool.", "pool"),
		poolActive:    gauge("pool_active", "Running closures per pool.", "pool"),
		poolWorkers:   gauge("pool_workers", "Live worker threads per pool.", "pool"),
		poolIdle:      gauge("pool_idle_workers", "Idle worker threads per pool.", "pool"),
		poolCompleted: gauge("pool_completed_total", "Pool completed task count snapshot.", "pool"),
		poolPanicked:  gauge("pool_panicked_total", "Pool panicked task count snapshot.", "pool"),
		poolRunning:   gauge("pool_running", "Pool running state (1=running, 0=stopped).", "pool"),

		schedLive:     gauge("scheduler_coroutines", "Live coroutines per scheduler.", "scheduler"),
		schedReady:    gauge("scheduler_ready", "Runnable coroutines per scheduler.", "scheduler"),
		schedParked:   gauge("scheduler_parked", "Suspended coroutines per scheduler.", "scheduler"),
		schedSwitches: gauge("scheduler_switches_total", "Scheduler context switch count snapshot.", "scheduler"),
		schedClosed:   gauge("scheduler_closed", "Scheduler closed state (1=closed, 0=open).", "scheduler"),
	}

	for _, vec := range []**prom.GaugeVec{
		&p.poolQueued, &p.poolActive, &p.poolWorkers, &p.poolIdle,
		&p.poolCompleted, &p.poolPanicked, &p.poolRunning,
		&p.schedLive, &p.schedReady, &p.schedParked, &p.schedSwitches, &p.schedClosed,
	} {
		registered, err := registerCollector(reg, *vec)
		if err != nil {
			return nil, err
		}
		*vec = registered
	}
	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolIdle.WithLabelValues(name).Set(float64(stats.IdleWorkers))
		p.poolCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.poolPanicked.WithLabelValues(name).Set(float64(stats.Panicked))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.poolsMu.RUnlock()

	p.schedulersMu.RLock()
	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.schedLive.WithLabelValues(name).Set(float64(stats.Live))
		p.schedReady.WithLabelValues(name).Set(float64(stats.Ready))
		p.schedParked.WithLabelValues(name).Set(float64(stats.Parked))
		p.schedSwitches.WithLabelValues(name).Set(float64(stats.Switches))
		p.schedClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
	p.schedulersMu.RUnlock()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
