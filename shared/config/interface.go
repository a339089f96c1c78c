package config

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	// EnvConfigPath names a YAML file to load instead of the built-in defaults.
	EnvConfigPath = "EYWA_CONFIG_YAML"
	// EnvLogLevel overrides log_level from any source.
	EnvLogLevel = "EYWA_LOG_LEVEL"
)

// IConfig is the read side of the robot configuration. Getters return an
// error so that sources which can fail on read share the same interface.
type IConfig interface {
	LogLevel() (string, error)

	// Protocol engine
	OutputQueueSize() (int, error)
	MaxFrameBytes() (int, error)
	ReadBufferBytes() (int, error)
	InboundRPS() (float64, error) // 0 disables throttling
	MaxParamsBytes() (int, error) // 0 disables the size validator

	// File transfers
	ChunkSize() (int, error)
	HTTPTimeout() (time.Duration, error) // 0 means no client timeout
	RateLimitBytesPerSecond() (int, error)
	InsecureSkipVerify() (bool, error)

	// Empty address disables the metrics listener
	MetricsAddress() (string, error)

	Status(ctx context.Context) error
	Close() error
}

// Load returns a YamlConfig when EYWA_CONFIG_YAML is set and in-memory
// defaults otherwise. EYWA_LOG_LEVEL is honoured by both.
func Load(logger *zap.Logger) (IConfig, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return NewYamlConfig(path, logger)
	}
	cfg := NewInternalConfig()
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.SetLogLevel(level)
	}
	return cfg, nil
}
