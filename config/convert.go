package config

import (
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/Swind/go-offload/core"
)

// ThreadPoolConfig returns the core pool config for p. Handlers are left nil
// so the pool fills in its defaults.
func (p PoolConfig) ThreadPoolConfig() core.ThreadPoolConfig {
	return core.ThreadPoolConfig{
		MinWorkers:      p.MinWorkers,
		MaxWorkers:      p.MaxWorkers,
		IdleTimeout:     p.IdleTimeout,
		HistoryCapacity: p.HistoryCapacity,
	}
}

// SlogLevel maps Level to a slog level. Unknown levels map to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a core.Logger writing to w in the configured format.
func (l LoggingConfig) NewLogger(w io.Writer) core.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}

	var handler slog.Handler
	if l.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return core.NewSlogLogger(slog.New(handler))
}

// OpenOutput opens the configured destination. Closing the returned closer
// is a no-op for stdout and stderr.
func (l LoggingConfig) OpenOutput() (io.Writer, io.Closer, error) {
	switch l.Output {
	case "", "stderr":
		return os.Stderr, io.NopCloser(nil), nil
	case "stdout":
		return os.Stdout, io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(l.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open log output %s", l.Output)
	}
	return f, f, nil
}
