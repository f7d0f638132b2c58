package config

import (
	"runtime"
	"strings"
	"time"
)

const (
	defaultPoolName        = "offload-default"
	defaultHistoryCapacity = 100
	defaultShutdownTimeout = 30 * time.Second
	defaultMetricsPort     = 9464
	defaultMetricsPath     = "/metrics"
)

// ApplyDefaults fills zero-valued fields. Explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyPoolDefaults(&cfg.Pool)
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
}

func applyPoolDefaults(cfg *PoolConfig) {
	if cfg.Name == "" {
		cfg.Name = defaultPoolName
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = max(runtime.NumCPU(), cfg.MinWorkers)
	}
	if cfg.HistoryCapacity == 0 {
		cfg.HistoryCapacity = defaultHistoryCapacity
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)

	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = defaultMetricsPort
	}
	if cfg.Path == "" {
		cfg.Path = defaultMetricsPath
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "offload"
	}
}

// GetDefaultConfig returns a fully defaulted configuration.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
