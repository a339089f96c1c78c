package robot

import (
	"fmt"
	"io"

	"github.com/neyho/eywa-go/files"
	"github.com/neyho/eywa-go/shared/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ClientOption configures a Client at construction time.
type ClientOption func(*Client) error

// WithStreams replaces stdin and stdout, for example with pipes in tests.
func WithStreams(r io.Reader, w io.Writer) ClientOption {
	return func(c *Client) error {
		if r == nil || w == nil {
			return fmt.Errorf("both streams are required")
		}
		c.reader = r
		c.writer = w
		return nil
	}
}

// WithLogger sets the process logger. It must not write to stdout.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

func WithConfig(cfg config.IConfig) ClientOption {
	return func(c *Client) error {
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		c.cfg = cfg
		return nil
	}
}

// WithRegisterer registers the client's collectors with r.
func WithRegisterer(r prometheus.Registerer) ClientOption {
	return func(c *Client) error {
		c.registerer = r
		return nil
	}
}

// WithExit replaces os.Exit in the task lifecycle.
func WithExit(exit func(code int)) ClientOption {
	return func(c *Client) error {
		c.exit = exit
		return nil
	}
}

// WithFileOptions appends options for the file engine; they are applied
// after the ones derived from the configuration.
func WithFileOptions(options ...files.EngineOption) ClientOption {
	return func(c *Client) error {
		c.fileOptions = append(c.fileOptions, options...)
		return nil
	}
}

func applyClientOptions(c *Client, options []ClientOption) error {
	for _, option := range options {
		if err := option(c); err != nil {
			return err
		}
	}
	return nil
}
