package config

import (
	"context"
	"sync"
	"time"
)

var _ IConfig = (*InternalConfig)(nil)

const (
	DefaultOutputQueueSize = 100
	DefaultMaxFrameBytes   = 10 * 1024 * 1024
	DefaultReadBufferBytes = 32 * 1024
	DefaultChunkSize       = 64 * 1024
)

// InternalConfig implements IConfig with in-memory storage
type InternalConfig struct {
	mu                      sync.RWMutex
	LogLevelValue           string
	OutputQueueSizeValue    int
	MaxFrameBytesValue      int
	ReadBufferBytesValue    int
	InboundRPSValue         float64
	MaxParamsBytesValue     int
	ChunkSizeValue          int
	HTTPTimeoutValue        time.Duration
	RateLimitValue          int
	InsecureSkipVerifyValue bool
	MetricsAddressValue     string
}

// NewInternalConfig creates a new in-memory configuration
func NewInternalConfig() *InternalConfig {
	return &InternalConfig{
		LogLevelValue:        "info",
		OutputQueueSizeValue: DefaultOutputQueueSize,
		MaxFrameBytesValue:   DefaultMaxFrameBytes,
		ReadBufferBytesValue: DefaultReadBufferBytes,
		ChunkSizeValue:       DefaultChunkSize,
	}
}

// LogLevel returns the configured log level
func (c *InternalConfig) LogLevel() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LogLevelValue, nil
}

func (c *InternalConfig) SetLogLevel(level string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LogLevelValue = level
}

func (c *InternalConfig) OutputQueueSize() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.OutputQueueSizeValue, nil
}

func (c *InternalConfig) MaxFrameBytes() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MaxFrameBytesValue, nil
}

func (c *InternalConfig) ReadBufferBytes() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ReadBufferBytesValue, nil
}

func (c *InternalConfig) InboundRPS() (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.InboundRPSValue, nil
}

func (c *InternalConfig) SetInboundRPS(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InboundRPSValue = rps
}

func (c *InternalConfig) MaxParamsBytes() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MaxParamsBytesValue, nil
}

func (c *InternalConfig) SetMaxParamsBytes(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MaxParamsBytesValue = n
}

func (c *InternalConfig) ChunkSize() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ChunkSizeValue, nil
}

func (c *InternalConfig) SetChunkSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ChunkSizeValue = n
}

func (c *InternalConfig) HTTPTimeout() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.HTTPTimeoutValue, nil
}

func (c *InternalConfig) RateLimitBytesPerSecond() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.RateLimitValue, nil
}

func (c *InternalConfig) SetRateLimitBytesPerSecond(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RateLimitValue = n
}

func (c *InternalConfig) InsecureSkipVerify() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.InsecureSkipVerifyValue, nil
}

func (c *InternalConfig) MetricsAddress() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MetricsAddressValue, nil
}

func (c *InternalConfig) SetMetricsAddress(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MetricsAddressValue = addr
}

func (c *InternalConfig) Close() error {
	return nil
}

func (c *InternalConfig) Status(ctx context.Context) error {
	return nil
}
