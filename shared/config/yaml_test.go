package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestYamlConfigDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	path := filepath.Join(t.TempDir(), "robot.yaml")
	writeConfig(t, path, "files:\n  rate_limit_bytes_per_second: 1024\n")

	cfg, err := NewYamlConfig(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	level, _ := cfg.LogLevel()
	assert.Equal(t, "info", level)
	queue, _ := cfg.OutputQueueSize()
	assert.Equal(t, DefaultOutputQueueSize, queue)
	frame, _ := cfg.MaxFrameBytes()
	assert.Equal(t, DefaultMaxFrameBytes, frame)
	chunk, _ := cfg.ChunkSize()
	assert.Equal(t, DefaultChunkSize, chunk)
	rate, _ := cfg.RateLimitBytesPerSecond()
	assert.Equal(t, 1024, rate)
	rps, _ := cfg.InboundRPS()
	assert.Zero(t, rps)
	require.NoError(t, cfg.Status(context.Background()))
}

func TestYamlConfigValues(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	path := filepath.Join(t.TempDir(), "robot.yaml")
	writeConfig(t, path, `
log_level: DEBUG
protocol:
  output_queue_size: 8
  max_frame_bytes: 4096
  inbound_rps: 2.5
  max_params_bytes: 512
files:
  chunk_size: 1024
  http_timeout: 30s
  insecure_skip_verify: true
metrics:
  address: 127.0.0.1:9102
`)

	cfg, err := NewYamlConfig(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	level, _ := cfg.LogLevel()
	assert.Equal(t, "debug", level)
	queue, _ := cfg.OutputQueueSize()
	assert.Equal(t, 8, queue)
	frame, _ := cfg.MaxFrameBytes()
	assert.Equal(t, 4096, frame)
	rps, _ := cfg.InboundRPS()
	assert.Equal(t, 2.5, rps)
	params, _ := cfg.MaxParamsBytes()
	assert.Equal(t, 512, params)
	chunk, _ := cfg.ChunkSize()
	assert.Equal(t, 1024, chunk)
	timeout, _ := cfg.HTTPTimeout()
	assert.Equal(t, 30*time.Second, timeout)
	insecure, _ := cfg.InsecureSkipVerify()
	assert.True(t, insecure)
	addr, _ := cfg.MetricsAddress()
	assert.Equal(t, "127.0.0.1:9102", addr)
}

func TestYamlConfigEnvLogLevelWins(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	path := filepath.Join(t.TempDir(), "robot.yaml")
	writeConfig(t, path, "log_level: debug\n")

	cfg, err := NewYamlConfig(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	level, _ := cfg.LogLevel()
	assert.Equal(t, "warn", level)
}

func TestYamlConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	_, err := NewYamlConfig(filepath.Join(dir, "missing.yaml"), zaptest.NewLogger(t))
	assert.Error(t, err)

	path := filepath.Join(dir, "negative.yaml")
	writeConfig(t, path, "files:\n  chunk_size: -1\n")
	_, err = NewYamlConfig(path, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "chunk_size")

	path = filepath.Join(dir, "broken.yaml")
	writeConfig(t, path, "protocol: [\n")
	_, err = NewYamlConfig(path, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestYamlConfigUpdateKeepsPreviousOnError(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	path := filepath.Join(t.TempDir(), "robot.yaml")
	writeConfig(t, path, "protocol:\n  inbound_rps: 5\n")
	cfg, err := NewYamlConfig(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	writeConfig(t, path, "protocol:\n  inbound_rps: -5\n")
	require.Error(t, cfg.Update())
	rps, _ := cfg.InboundRPS()
	assert.Equal(t, 5.0, rps)
}

func TestYamlConfigWatch(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	path := filepath.Join(t.TempDir(), "robot.yaml")
	writeConfig(t, path, "protocol:\n  inbound_rps: 1\n")
	cfg, err := NewYamlConfig(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan struct{}, 10)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- cfg.Watch(ctx, func() { changed <- struct{}{} })
	}()

	// the watcher registers asynchronously; rewrite until a change is seen
	require.Eventually(t, func() bool {
		writeConfig(t, path, "protocol:\n  inbound_rps: 7\n")
		select {
		case <-changed:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	rps, _ := cfg.InboundRPS()
	assert.Equal(t, 7.0, rps)

	cancel()
	assert.NoError(t, <-watchErr)
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv(EnvLogLevel, "error")
	cfg, err := Load(zaptest.NewLogger(t))
	require.NoError(t, err)
	require.IsType(t, &InternalConfig{}, cfg)
	level, _ := cfg.LogLevel()
	assert.Equal(t, "error", level)

	path := filepath.Join(t.TempDir(), "robot.yaml")
	writeConfig(t, path, "log_level: info\n")
	t.Setenv(EnvConfigPath, path)
	cfg, err = Load(zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &YamlConfig{}, cfg)
}
