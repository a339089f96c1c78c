// Package task reports the state of the task a robot runs and ends the
// process when the task is finished.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/neyho/eywa-go/shared"
	"go.uber.org/zap"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusError      Status = "ERROR"
	StatusException  Status = "EXCEPTION"
)

// Session is the part of the protocol session the lifecycle needs.
type Session interface {
	SendNotification(method string, params interface{}) error
	Call(ctx context.Context, method string, params interface{}, result interface{}) error
	Flush(ctx context.Context) error
}

var _ Session = (shared.ISession)(nil)

const DefaultFlushTimeout = 5 * time.Second

// Lifecycle is the only place that ends the robot process.
type Lifecycle struct {
	session      Session
	logger       *zap.Logger
	exit         func(code int)
	flushTimeout time.Duration

	mu     sync.Mutex
	status Status
}

type Option func(*Lifecycle)

// WithExit replaces os.Exit, mainly for tests.
func WithExit(exit func(code int)) Option {
	return func(l *Lifecycle) {
		l.exit = exit
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithFlushTimeout bounds how long Close and Return wait for queued frames
// to be written before exiting.
func WithFlushTimeout(d time.Duration) Option {
	return func(l *Lifecycle) {
		l.flushTimeout = d
	}
}

func New(session Session, options ...Option) *Lifecycle {
	l := &Lifecycle{
		session:      session,
		logger:       zap.NewNop(),
		exit:         os.Exit,
		flushTimeout: DefaultFlushTimeout,
		status:       StatusPending,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Status returns the last status sent by this process.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

type statusParams struct {
	Status Status `json:"status"`
}

// Update announces a new task status.
func (l *Lifecycle) Update(status Status) error {
	if err := l.session.SendNotification(shared.MethodTaskUpdate, statusParams{Status: status}); err != nil {
		return fmt.Errorf("task update: %w", err)
	}
	l.setStatus(status)
	return nil
}

// Get asks the orchestrator for the current task and decodes it into out.
func (l *Lifecycle) Get(ctx context.Context, out interface{}) error {
	if err := l.session.Call(ctx, shared.MethodTaskGet, nil, out); err != nil {
		return fmt.Errorf("task get: %w", err)
	}
	return nil
}

// GetRaw returns the current task as undecoded JSON.
func (l *Lifecycle) GetRaw(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := l.Get(ctx, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type reportParams struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Image   interface{} `json:"image"`
}

// Report attaches a result to the task. data is any JSON value, often a
// Table; image, when not empty, is an encoded image.
func (l *Lifecycle) Report(message string, data interface{}, image string) error {
	params := reportParams{Message: message, Data: data}
	if image != "" {
		params.Image = image
	}
	if err := l.session.SendNotification(shared.MethodTaskReport, params); err != nil {
		return fmt.Errorf("task report: %w", err)
	}
	return nil
}

// Close announces the final status, waits for queued frames to be written
// and exits with 0 for SUCCESS and 1 otherwise. It returns only when the
// exit function does.
func (l *Lifecycle) Close(status Status) error {
	err := l.session.SendNotification(shared.MethodTaskClose, statusParams{Status: status})
	if err != nil {
		l.logger.Error("Failed to send task close", zap.String("status", string(status)), zap.Error(err))
	} else {
		l.setStatus(status)
		err = l.flush()
	}

	code := 1
	if status == StatusSuccess {
		code = 0
	}
	l.logger.Info("Closing task", zap.String("status", string(status)), zap.Int("exit_code", code))
	l.exit(code)
	return err
}

// Return hands the task back to the orchestrator unfinished and exits with 0.
func (l *Lifecycle) Return() error {
	err := l.session.SendNotification(shared.MethodTaskReturn, nil)
	if err != nil {
		l.logger.Error("Failed to send task return", zap.Error(err))
	} else {
		err = l.flush()
	}
	l.logger.Info("Returning task")
	l.exit(0)
	return err
}

func (l *Lifecycle) flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), l.flushTimeout)
	defer cancel()
	if err := l.session.Flush(ctx); err != nil {
		l.logger.Warn("Output not fully flushed", zap.Error(err))
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func (l *Lifecycle) setStatus(status Status) {
	l.mu.Lock()
	l.status = status
	l.mu.Unlock()
}
