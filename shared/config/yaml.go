package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var _ IConfig = (*YamlConfig)(nil)

// YamlConfig implements IConfig with YAML file-based storage
type YamlConfig struct {
	mu         sync.RWMutex
	configPath string
	logger     *zap.Logger

	logLevel           string
	outputQueueSize    int
	maxFrameBytes      int
	readBufferBytes    int
	inboundRPS         float64
	maxParamsBytes     int
	chunkSize          int
	httpTimeout        time.Duration
	rateLimit          int
	insecureSkipVerify bool
	metricsAddress     string
}

// YAML configuration structure matching the required format
type yamlConfig struct {
	LogLevel string `yaml:"log_level"`
	Protocol struct {
		OutputQueueSize int     `yaml:"output_queue_size"`
		MaxFrameBytes   int     `yaml:"max_frame_bytes"`
		ReadBufferBytes int     `yaml:"read_buffer_bytes"`
		InboundRPS      float64 `yaml:"inbound_rps"`
		MaxParamsBytes  int     `yaml:"max_params_bytes"`
	} `yaml:"protocol"`
	Files struct {
		ChunkSize               int           `yaml:"chunk_size"`
		HTTPTimeout             time.Duration `yaml:"http_timeout"`
		RateLimitBytesPerSecond int           `yaml:"rate_limit_bytes_per_second"`
		InsecureSkipVerify      bool          `yaml:"insecure_skip_verify"`
	} `yaml:"files"`
	Metrics struct {
		Address string `yaml:"address"`
	} `yaml:"metrics"`
}

// NewYamlConfig creates a new YAML-based configuration
func NewYamlConfig(configPath string, logger *zap.Logger) (*YamlConfig, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config := &YamlConfig{
		configPath: configPath,
		logger:     logger.With(zap.String("config_path", configPath)),
	}
	if err := config.Update(); err != nil {
		return nil, err
	}
	return config, nil
}

// Update reloads configuration from the YAML file. Missing or zero keys fall
// back to the defaults; EYWA_LOG_LEVEL wins over log_level.
func (c *YamlConfig) Update() error {
	c.logger.Debug("Updating configuration from YAML file")

	data, err := os.ReadFile(c.configPath)
	if err != nil {
		c.logger.Error("Failed to read config file", zap.Error(err))
		return err
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		c.logger.Error("Failed to parse YAML", zap.Error(err))
		return fmt.Errorf("parse %s: %w", c.configPath, err)
	}
	if err := validate(&yamlCfg); err != nil {
		return fmt.Errorf("invalid config %s: %w", c.configPath, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.logLevel = strings.ToLower(yamlCfg.LogLevel)
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.logLevel = level
	}
	if c.logLevel == "" {
		c.logLevel = "info"
	}

	c.outputQueueSize = orDefault(yamlCfg.Protocol.OutputQueueSize, DefaultOutputQueueSize)
	c.maxFrameBytes = orDefault(yamlCfg.Protocol.MaxFrameBytes, DefaultMaxFrameBytes)
	c.readBufferBytes = orDefault(yamlCfg.Protocol.ReadBufferBytes, DefaultReadBufferBytes)
	c.inboundRPS = yamlCfg.Protocol.InboundRPS
	c.maxParamsBytes = yamlCfg.Protocol.MaxParamsBytes

	c.chunkSize = orDefault(yamlCfg.Files.ChunkSize, DefaultChunkSize)
	c.httpTimeout = yamlCfg.Files.HTTPTimeout
	c.rateLimit = yamlCfg.Files.RateLimitBytesPerSecond
	c.insecureSkipVerify = yamlCfg.Files.InsecureSkipVerify

	c.metricsAddress = yamlCfg.Metrics.Address
	return nil
}

func validate(cfg *yamlConfig) error {
	switch {
	case cfg.Protocol.OutputQueueSize < 0:
		return fmt.Errorf("protocol.output_queue_size must not be negative")
	case cfg.Protocol.MaxFrameBytes < 0:
		return fmt.Errorf("protocol.max_frame_bytes must not be negative")
	case cfg.Protocol.ReadBufferBytes < 0:
		return fmt.Errorf("protocol.read_buffer_bytes must not be negative")
	case cfg.Protocol.InboundRPS < 0:
		return fmt.Errorf("protocol.inbound_rps must not be negative")
	case cfg.Files.ChunkSize < 0:
		return fmt.Errorf("files.chunk_size must not be negative")
	case cfg.Files.RateLimitBytesPerSecond < 0:
		return fmt.Errorf("files.rate_limit_bytes_per_second must not be negative")
	}
	return nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Watch reloads the file whenever it changes on disk and calls onChange after
// each successful reload. It blocks until ctx is done. The parent directory
// is watched so that editors replacing the file by rename are noticed.
func (c *YamlConfig) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(c.configPath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	c.logger.Debug("Watching config file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := c.Update(); err != nil {
				c.logger.Warn("Keeping previous configuration", zap.Error(err))
				continue
			}
			c.logger.Info("Configuration reloaded")
			if onChange != nil {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Error("Config watcher error", zap.Error(err))
		}
	}
}

func (c *YamlConfig) Close() error { return nil }

func (c *YamlConfig) LogLevel() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logLevel, nil
}

func (c *YamlConfig) OutputQueueSize() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outputQueueSize, nil
}

func (c *YamlConfig) MaxFrameBytes() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxFrameBytes, nil
}

func (c *YamlConfig) ReadBufferBytes() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readBufferBytes, nil
}

func (c *YamlConfig) InboundRPS() (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inboundRPS, nil
}

func (c *YamlConfig) MaxParamsBytes() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxParamsBytes, nil
}

func (c *YamlConfig) ChunkSize() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chunkSize, nil
}

func (c *YamlConfig) HTTPTimeout() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpTimeout, nil
}

func (c *YamlConfig) RateLimitBytesPerSecond() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rateLimit, nil
}

func (c *YamlConfig) InsecureSkipVerify() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.insecureSkipVerify, nil
}

func (c *YamlConfig) MetricsAddress() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metricsAddress, nil
}

func (c *YamlConfig) Status(ctx context.Context) error {
	if _, err := os.Stat(c.configPath); err != nil {
		c.logger.Error("YAML config file status check failed", zap.Error(err))
		return fmt.Errorf("config file error: %w", err)
	}
	return nil
}
