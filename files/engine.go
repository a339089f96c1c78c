// Package files moves file content between the robot and the object store
// behind the orchestrator: a presigned URL is negotiated over GraphQL, the
// bytes travel over plain HTTP, and uploads are confirmed afterwards.
package files

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/neyho/eywa-go/graphql"
	"github.com/neyho/eywa-go/shared/config"
	"github.com/neyho/eywa-go/shared/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultChunkSize = 64 * 1024

type Engine struct {
	gql        *graphql.Client
	httpClient *http.Client
	chunkSize  int
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *metrics.Metrics

	bytesPerSecond     int
	timeout            time.Duration
	insecureSkipVerify bool
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine) error

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) error {
		if logger != nil {
			e.logger = logger
		}
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithHTTPClient replaces the client used for object store requests. The
// timeout and TLS options are ignored when a client is given.
func WithHTTPClient(client *http.Client) EngineOption {
	return func(e *Engine) error {
		if client == nil {
			return fmt.Errorf("http client is nil")
		}
		e.httpClient = client
		return nil
	}
}

// WithChunkSize sets the size of the pieces content is read and reported in.
func WithChunkSize(n int) EngineOption {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("chunk size must be positive, got %d", n)
		}
		e.chunkSize = n
		return nil
	}
}

// WithRateLimit caps transfer bandwidth. Zero leaves it unlimited.
func WithRateLimit(bytesPerSecond int) EngineOption {
	return func(e *Engine) error {
		if bytesPerSecond < 0 {
			return fmt.Errorf("rate limit must not be negative, got %d", bytesPerSecond)
		}
		e.bytesPerSecond = bytesPerSecond
		return nil
	}
}

// WithHTTPTimeout bounds every object store request. Zero means no timeout.
func WithHTTPTimeout(d time.Duration) EngineOption {
	return func(e *Engine) error {
		e.timeout = d
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate checks against the object
// store. Only meant for development stores with self-signed certificates.
func WithInsecureSkipVerify(skip bool) EngineOption {
	return func(e *Engine) error {
		e.insecureSkipVerify = skip
		return nil
	}
}

// OptionsFromConfig translates the files section of cfg into options.
func OptionsFromConfig(cfg config.IConfig) ([]EngineOption, error) {
	chunk, err := cfg.ChunkSize()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.HTTPTimeout()
	if err != nil {
		return nil, err
	}
	limit, err := cfg.RateLimitBytesPerSecond()
	if err != nil {
		return nil, err
	}
	insecure, err := cfg.InsecureSkipVerify()
	if err != nil {
		return nil, err
	}
	return []EngineOption{
		WithChunkSize(chunk),
		WithHTTPTimeout(timeout),
		WithRateLimit(limit),
		WithInsecureSkipVerify(insecure),
	}, nil
}

func NewEngine(gql *graphql.Client, options ...EngineOption) (*Engine, error) {
	if gql == nil {
		return nil, fmt.Errorf("graphql client is nil")
	}
	e := &Engine{
		gql:       gql,
		chunkSize: DefaultChunkSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range options {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if e.insecureSkipVerify {
			e.logger.Warn("TLS verification against the object store is disabled")
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		e.httpClient = &http.Client{Transport: transport, Timeout: e.timeout}
	}
	if e.bytesPerSecond > 0 {
		burst := e.bytesPerSecond
		if burst < e.chunkSize {
			burst = e.chunkSize
		}
		e.limiter = rate.NewLimiter(rate.Limit(e.bytesPerSecond), burst)
	}
	return e, nil
}

// TransferOption configures a single transfer.
type TransferOption func(*transferOptions)

type transferOptions struct {
	progress ProgressFunc
}

// WithProgress reports progress of the transfer to fn.
func WithProgress(fn ProgressFunc) TransferOption {
	return func(o *transferOptions) {
		o.progress = fn
	}
}

func applyTransferOptions(options []TransferOption) transferOptions {
	var o transferOptions
	for _, opt := range options {
		opt(&o)
	}
	return o
}

func (e *Engine) finished(s *Session) {
	e.metrics.TransferFinished(string(s.Direction), string(s.State))
}
