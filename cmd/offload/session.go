package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	offload "github.com/Swind/go-offload"
	"github.com/Swind/go-offload/config"
	"github.com/Swind/go-offload/core"
	"github.com/Swind/go-offload/coro"
	obs "github.com/Swind/go-offload/observability/prometheus"
)

const pollInterval = time.Second

// session bundles what every pool-backed command needs.
type session struct {
	cfg     *config.Config
	logger  core.Logger
	pool    *offload.ThreadPool
	metrics *metricsServer
	output  io.Closer
}

// setup loads the config and builds logger, metrics and pool in that order.
func setup(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	w, closer, err := cfg.Logging.OpenOutput()
	if err != nil {
		return nil, err
	}
	rt := &session{cfg: cfg, logger: cfg.Logging.NewLogger(w), output: closer}

	poolCfg := cfg.Pool.ThreadPoolConfig()
	poolCfg.Logger = rt.logger
	if cfg.Metrics.Enabled {
		rt.metrics, err = startMetrics(c.Context, cfg.Metrics, rt.logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		poolCfg.Metrics = rt.metrics.exporter
	}

	rt.pool, err = offload.NewThreadPool(cfg.Pool.Name, poolCfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.pool.Start(c.Context); err != nil {
		rt.Close()
		return nil, err
	}
	if rt.metrics != nil {
		rt.metrics.poller.AddPool(cfg.Pool.Name, rt.pool)
	}
	return rt, nil
}

// newScheduler creates a coroutine scheduler that logs like the pool and is
// exported when metrics are on.
func (rt *session) newScheduler(name string) *coro.Scheduler {
	s := coro.NewScheduler(name, coro.WithLogger(rt.logger))
	if rt.metrics != nil {
		rt.metrics.poller.AddScheduler(name, s)
	}
	return s
}

// Close drains the pool within the configured timeout, then stops metrics.
func (rt *session) Close() error {
	var err error
	if rt.pool != nil {
		err = rt.pool.ShutdownGraceful(rt.cfg.ShutdownTimeout)
	}
	if rt.metrics != nil {
		rt.metrics.Close()
	}
	if rt.output != nil {
		rt.output.Close()
	}
	return err
}

type metricsServer struct {
	exporter *obs.MetricsExporter
	poller   *obs.SnapshotPoller
	server   *http.Server
}

func startMetrics(ctx context.Context, cfg config.MetricsConfig, logger core.Logger) (*metricsServer, error) {
	reg := prom.NewRegistry()

	exporter, err := obs.NewMetricsExporter(cfg.Namespace, reg, obs.ExporterOptions{})
	if err != nil {
		return nil, err
	}
	poller, err := obs.NewSnapshotPoller(cfg.Namespace, reg, pollInterval)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort("", strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", core.F("addr", addr), core.F("error", err))
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	poller.Start(ctx)
	logger.Info("metrics endpoint listening", core.F("addr", ln.Addr().String()), core.F("path", cfg.Path))

	return &metricsServer{exporter: exporter, poller: poller, server: server}, nil
}

func (m *metricsServer) Close() {
	m.poller.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = m.server.Shutdown(ctx)
}
