package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-offload/core"
)

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
pool:
  name: "dns"
  min_workers: 2
  max_workers: 8
  idle_timeout: 30s

logging:
  level: "debug"
  format: "json"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "dns", cfg.Pool.Name)
	assert.Equal(t, 2, cfg.Pool.MinWorkers)
	assert.Equal(t, 8, cfg.Pool.MaxWorkers)
	assert.Equal(t, 30*time.Second, cfg.Pool.IdleTimeout)
	assert.Equal(t, "DEBUG", cfg.Logging.Level, "level should be normalised")
	assert.Equal(t, "json", cfg.Logging.Format)

	// Defaults fill the rest
	assert.Equal(t, defaultHistoryCapacity, cfg.Pool.HistoryCapacity)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, defaultPoolName, cfg.Pool.Name)
	assert.GreaterOrEqual(t, cfg.Pool.MaxWorkers, 1)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("OFFLOAD_POOL_MAX_WORKERS", "3")
	t.Setenv("OFFLOAD_POOL_IDLE_TIMEOUT", "250ms")
	t.Setenv("OFFLOAD_LOGGING_FORMAT", "json")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Pool.MaxWorkers)
	assert.Equal(t, 250*time.Millisecond, cfg.Pool.IdleTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_InvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("pool: [unclosed"), 0644))

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
pool:
  min_workers: 6
  max_workers: 2
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gtefield")
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Pool.Name = "saved"
	cfg.Pool.MaxWorkers = 5
	cfg.Pool.IdleTimeout = 2 * time.Second

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Pool.Name)
	assert.Equal(t, 5, loaded.Pool.MaxWorkers)
	assert.Equal(t, 2*time.Second, loaded.Pool.IdleTimeout)
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "LOUD"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidMetricsPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_Nil(t *testing.T) {
	assert.Error(t, Validate(nil))
}

func TestPoolConfig_ThreadPoolConfig(t *testing.T) {
	p := PoolConfig{Name: "p", MinWorkers: 1, MaxWorkers: 4, IdleTimeout: time.Second, HistoryCapacity: 10}

	tp := p.ThreadPoolConfig()

	assert.Equal(t, 1, tp.MinWorkers)
	assert.Equal(t, 4, tp.MaxWorkers)
	assert.Equal(t, time.Second, tp.IdleTimeout)
	assert.Equal(t, 10, tp.HistoryCapacity)
	assert.NoError(t, tp.Validate())
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "WARN", Format: "json", Output: "stdout"}.NewLogger(&buf)

	logger.Info("dropped")
	logger.Warn("kept", fieldOf("pool", "p1"))

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"pool":"p1"`)
}

func TestLoggingConfig_OpenOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offload.log")

	w, closer, err := LoggingConfig{Output: path}.OpenOutput()
	require.NoError(t, err)
	_, err = w.Write([]byte("line\n"))
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

func fieldOf(key string, value any) core.Field {
	return core.F(key, value)
}
