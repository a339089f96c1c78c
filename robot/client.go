// Package robot wires the protocol session, the GraphQL carrier, the file
// engine and the task lifecycle into one client for a robot process.
package robot

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/neyho/eywa-go/files"
	"github.com/neyho/eywa-go/graphql"
	"github.com/neyho/eywa-go/shared"
	"github.com/neyho/eywa-go/shared/config"
	"github.com/neyho/eywa-go/shared/metrics"
	"github.com/neyho/eywa-go/shared/validators"
	"github.com/neyho/eywa-go/task"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Client struct {
	Session *shared.Session
	Input   *shared.Input
	GraphQL *graphql.Client
	Files   *files.Engine
	Task    *task.Lifecycle
	Metrics *metrics.Metrics

	logger      *zap.Logger
	cfg         config.IConfig
	reader      io.Reader
	writer      io.Writer
	registerer  prometheus.Registerer
	exit        func(code int)
	fileOptions []files.EngineOption

	validators *validators.Set
}

// New builds a client talking JSON-RPC over stdin and stdout unless
// WithStreams says otherwise. Call Start before issuing requests.
func New(options ...ClientOption) (*Client, error) {
	c := &Client{
		logger: zap.NewNop(),
		reader: os.Stdin,
		writer: os.Stdout,
		exit:   os.Exit,
	}
	if err := applyClientOptions(c, options); err != nil {
		return nil, err
	}
	if c.cfg == nil {
		c.cfg = config.NewInternalConfig()
	}
	c.Metrics = metrics.New(c.registerer)

	var err error
	c.Input = shared.NewInput(c.logger)
	c.Input.SetMetrics(c.Metrics)
	c.validators, err = validators.CreateDefaultValidators(c.cfg)
	if err != nil {
		return nil, err
	}
	c.Input.AddValidator(c.validators.Validators()...)

	sessionOptions, err := sessionOptionsFromConfig(c.cfg)
	if err != nil {
		return nil, err
	}
	sessionOptions = append(sessionOptions, shared.WithMetrics(c.Metrics))
	c.Session, err = shared.NewSession(c.logger, c.Input, c.reader, c.writer, sessionOptions...)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	c.GraphQL = graphql.NewClient(c.Session, c.logger)

	fileOptions, err := files.OptionsFromConfig(c.cfg)
	if err != nil {
		return nil, err
	}
	fileOptions = append(fileOptions, files.WithLogger(c.logger), files.WithMetrics(c.Metrics))
	fileOptions = append(fileOptions, c.fileOptions...)
	c.Files, err = files.NewEngine(c.GraphQL, fileOptions...)
	if err != nil {
		return nil, fmt.Errorf("create file engine: %w", err)
	}

	c.Task = task.New(c.Session, task.WithExit(c.exit), task.WithLogger(c.logger))
	return c, nil
}

func sessionOptionsFromConfig(cfg config.IConfig) ([]shared.SessionOption, error) {
	queue, err := cfg.OutputQueueSize()
	if err != nil {
		return nil, err
	}
	maxFrame, err := cfg.MaxFrameBytes()
	if err != nil {
		return nil, err
	}
	readBuffer, err := cfg.ReadBufferBytes()
	if err != nil {
		return nil, err
	}
	return []shared.SessionOption{
		shared.WithOutputQueueSize(queue),
		shared.WithMaxFrameBytes(maxFrame),
		shared.WithReadBufferSize(readBuffer),
	}, nil
}

// Start begins reading requests and writing frames.
func (c *Client) Start() {
	c.Session.Start()
}

// Run starts the client and blocks until ctx is done or the orchestrator
// closes stdin.
func (c *Client) Run(ctx context.Context) error {
	return c.Session.Run(ctx)
}

// Handle registers handler for inbound requests and notifications named
// method, replacing an earlier one.
func (c *Client) Handle(method string, handler shared.HandlerFunc) {
	c.Input.AddHandler(method, handler)
}

// Logger returns the process logger.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// TaskLogger returns a logger that writes to the process logger and, for
// entries at or above level, to the task log as well.
func (c *Client) TaskLogger(level zapcore.LevelEnabler) *zap.Logger {
	return c.logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, task.NewCore(c.Task, level))
	}))
}

// ApplyConfig updates the settings that can change while running: inbound
// limits. Other settings apply to the next client.
func (c *Client) ApplyConfig(cfg config.IConfig) error {
	if err := c.validators.Apply(cfg); err != nil {
		return err
	}
	c.logger.Debug("Applied configuration")
	return nil
}

// Close flushes queued frames and stops the writer. It does not end the
// process; use Task.Close for that.
func (c *Client) Close() error {
	return c.Session.Close()
}
