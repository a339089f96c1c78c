package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neyho/eywa-go/shared/metrics"
	"github.com/neyho/eywa-go/shared/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultOutputQueueSize = 100
	DefaultReadBufferSize  = 32 * 1024
)

// SessionStatus represents the current state of a session
type SessionStatus int

const (
	StatusNew SessionStatus = iota
	StatusRunning
	StatusClosed
)

func (s SessionStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusRunning:
		return "running"
	default:
		return "closed"
	}
}

type ISession interface {
	GetID() string
	Input() *Input

	SendRequest(method string, params interface{}) (*PendingRequest, error)
	Call(ctx context.Context, method string, params interface{}, result interface{}) error
	SendNotification(method string, params interface{}) error
	SendResponse(msgId *schema.RequestID, result interface{}, err error)
	Flush(ctx context.Context) error

	GetLastActivity() time.Time
	UpdateLastActivity()

	GetStatus() SessionStatus
	Close() error
	GetRequestManager() *RequestManager
	GetLogger() *zap.Logger
}

var _ ISession = (*Session)(nil)

// outbound is one item of the writer queue. A nil msg with a flushed channel
// is a barrier: the writer closes it once every earlier frame is written.
type outbound struct {
	msg     *Message
	flushed chan struct{}
}

// Session is one JSON-RPC peer connection over a byte stream pair. All
// outbound frames go through a single writer goroutine; inbound frames are
// read, framed and dispatched by a single reader goroutine.
type Session struct {
	mu             sync.RWMutex
	ID             string
	CreatedAt      time.Time
	LastActivity   atomic.Value
	status         SessionStatus
	Logger         *zap.Logger
	RequestManager *RequestManager
	inputProcessor *Input
	framer         *Framer
	metrics        *metrics.Metrics

	reader         io.Reader
	writer         io.Writer
	readBufferSize int
	queueSize      int
	maxFrameBytes  int

	output      chan outbound
	readerDone  chan struct{}
	writerDone  chan struct{}
	writeFailed chan struct{}
	readErr     error
	writeErr    *TransportError
	startOnce  sync.Once
	group      errgroup.Group
}

// SessionOption configures a Session at construction time.
type SessionOption func(*Session) error

// WithOutputQueueSize sets the capacity of the outbound frame queue.
func WithOutputQueueSize(n int) SessionOption {
	return func(s *Session) error {
		if n < 1 {
			return fmt.Errorf("output queue size must be positive, got %d", n)
		}
		s.queueSize = n
		return nil
	}
}

// WithMaxFrameBytes bounds the unparsed input kept while a frame is incomplete.
func WithMaxFrameBytes(n int) SessionOption {
	return func(s *Session) error {
		if n < 1 {
			return fmt.Errorf("max frame bytes must be positive, got %d", n)
		}
		s.maxFrameBytes = n
		return nil
	}
}

// WithReadBufferSize sets the size of a single read from the input stream.
func WithReadBufferSize(n int) SessionOption {
	return func(s *Session) error {
		if n < 1 {
			return fmt.Errorf("read buffer size must be positive, got %d", n)
		}
		s.readBufferSize = n
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) SessionOption {
	return func(s *Session) error {
		s.metrics = m
		return nil
	}
}

func applySessionOptions(s *Session, options []SessionOption) error {
	for _, opt := range options {
		if err := opt(s); err != nil {
			return err
		}
	}
	return nil
}

// NewSession wires a session reading frames from r and writing frames to w.
// Inbound Requests and Notifications are dispatched through inputProcessor.
func NewSession(logger *zap.Logger, inputProcessor *Input, r io.Reader, w io.Writer, options ...SessionOption) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if inputProcessor == nil {
		inputProcessor = NewInput(logger)
	}
	sessionID := RandomID()
	sessionLogger := logger.With(zap.String("session_id", sessionID))

	s := &Session{
		ID:             sessionID,
		CreatedAt:      time.Now(),
		status:         StatusNew,
		Logger:         sessionLogger,
		RequestManager: NewRequestManager(sessionLogger),
		inputProcessor: inputProcessor,
		reader:         r,
		writer:         w,
		readBufferSize: DefaultReadBufferSize,
		queueSize:      DefaultOutputQueueSize,
		maxFrameBytes:  DefaultMaxFrameBytes,
		readerDone:     make(chan struct{}),
		writerDone:     make(chan struct{}),
		writeFailed:    make(chan struct{}),
	}
	if err := applySessionOptions(s, options); err != nil {
		return nil, err
	}

	s.output = make(chan outbound, s.queueSize)
	s.framer = NewFramer(sessionLogger, s.maxFrameBytes)
	s.framer.session = s
	s.framer.onError = s.protocolError
	s.RequestManager.onChange = s.metrics.SetPending
	s.UpdateLastActivity()
	sessionLogger.Debug("Created session",
		zap.Int("output_queue_size", s.queueSize),
		zap.Int("max_frame_bytes", s.maxFrameBytes))
	return s, nil
}

// Start launches the reader and writer goroutines. Calling it more than once
// has no effect.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.status = StatusRunning
		s.mu.Unlock()
		s.group.Go(s.writeLoop)
		s.group.Go(s.readLoop)
	})
}

// Wait blocks until both loops have stopped and returns the first fatal
// error. The reader stops when the input stream ends; the writer stops on
// Close or on a write failure.
func (s *Session) Wait() error {
	return s.group.Wait()
}

// Run starts the session and blocks until ctx is done or the input stream
// ends. Queued output is flushed before Run returns.
func (s *Session) Run(ctx context.Context) error {
	s.Start()
	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-s.readerDone:
		err = s.readErr
	case <-s.writeFailed:
		err = s.writeErr
	case <-s.writerDone:
	}
	closeErr := s.Close()
	if err == nil {
		err = closeErr
	}
	return err
}

// InputDone is closed once the reader has stopped.
func (s *Session) InputDone() <-chan struct{} {
	return s.readerDone
}

func (s *Session) readLoop() error {
	buf := make([]byte, s.readBufferSize)
	for {
		n, err := s.reader.Read(buf)
		if n > 0 {
			s.UpdateLastActivity()
			for _, msg := range s.framer.Feed(buf[:n]) {
				s.metrics.FrameReceived(msg.Kind().String())
				s.inputProcessor.Dispatch(msg)
			}
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			err = ErrInputClosed
			s.Logger.Info("Input stream closed")
		} else {
			s.Logger.Error("Failed to read input stream", zap.Error(err))
		}
		terr := &TransportError{Op: "read", Err: err}
		s.readErr = terr
		// readerDone is closed before FailAll so a concurrent SendRequest either
		// sees it or is registered in time to be failed.
		close(s.readerDone)
		s.RequestManager.FailAll(terr)
		if n := s.framer.Buffered(); n > 0 {
			s.Logger.Warn("Input ended inside a frame", zap.Int("buffered_bytes", n))
		}
		return terr
	}
}

func (s *Session) writeLoop() error {
	defer close(s.writerDone)
	for out := range s.output {
		if out.msg == nil {
			if out.flushed != nil {
				close(out.flushed)
			}
			continue
		}
		data, err := s.framer.Serialize(out.msg)
		if err != nil {
			s.Logger.Error("Failed to serialize outbound frame", zap.Error(err), zap.String("method", NilIfNil(out.msg.Method)))
			if out.msg.Kind() == KindRequest {
				s.RequestManager.ProcessResponse(&Message{ID: out.msg.ID, Error: NewJSONRPCError(err)})
			}
			continue
		}
		if _, err := s.writer.Write(data); err != nil {
			terr := &TransportError{Op: "write", Err: err}
			s.Logger.Error("Failed to write output stream", zap.Error(err))
			s.writeErr = terr
			// writeFailed is closed before FailAll so a concurrent SendRequest
			// is either refused by enqueue or failed by drain.
			close(s.writeFailed)
			s.RequestManager.FailAll(terr)
			s.drain(terr)
			return terr
		}
		s.metrics.FrameSent(out.msg.Kind().String())
		s.Logger.Debug("Frame written",
			zap.String("kind", out.msg.Kind().String()),
			zap.String("method", NilIfNil(out.msg.Method)),
			zap.String("message_id", out.msg.ID.String()))
	}
	return nil
}

// drain consumes the queue after a write failure until Close. Requests that
// slipped into the queue are failed with terr; flush barriers stay open so
// Flush reports the failure instead of success.
func (s *Session) drain(terr *TransportError) {
	for out := range s.output {
		if out.msg != nil && out.msg.Kind() == KindRequest {
			s.RequestManager.Fail(out.msg.ID, terr)
		}
	}
}

func (s *Session) enqueue(out outbound) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == StatusClosed {
		return ErrSessionClosed
	}
	select {
	case <-s.writeFailed:
		return s.writeErr
	default:
	}
	select {
	case s.output <- out:
		s.UpdateLastActivity()
		return nil
	case <-s.writerDone:
		return ErrSessionClosed
	}
}

func (s *Session) protocolError(perr *ProtocolError) {
	s.metrics.ProtocolError(string(perr.Kind))
}

// GetID returns the unique session identifier
func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Input() *Input {
	return s.inputProcessor
}

func (s *Session) GetLogger() *zap.Logger {
	return s.Logger
}

func (s *Session) GetRequestManager() *RequestManager {
	return s.RequestManager
}

// GetStatus returns the current status of the session
func (s *Session) GetStatus() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) UpdateLastActivity() {
	s.LastActivity.Store(time.Now())
}

func (s *Session) GetLastActivity() time.Time {
	return s.LastActivity.Load().(time.Time)
}

// SendRequest registers a pending entry under a fresh id and queues the
// Request. The caller waits on the returned PendingRequest.
func (s *Session) SendRequest(method string, params interface{}) (*PendingRequest, error) {
	jsonParams, err := marshalRaw(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request parameters: %w", err)
	}

	msgID := schema.RequestID_FromString(NewRequestID())
	pending := s.RequestManager.RegisterRequest(&msgID, method)

	select {
	case <-s.readerDone:
		s.RequestManager.Abandon(&msgID)
		return nil, s.readErr
	default:
	}

	msg := &Message{
		ID:        &msgID,
		Method:    &method,
		Params:    jsonParams,
		Session:   s,
		Timestamp: time.Now(),
	}
	if err := s.enqueue(outbound{msg: msg}); err != nil {
		s.RequestManager.Abandon(&msgID)
		return nil, err
	}
	return pending, nil
}

// Call sends a Request and blocks for its Response. A non-nil result is
// filled from the Response's result member.
func (s *Session) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	pending, err := s.SendRequest(method, params)
	if err != nil {
		return err
	}
	raw, err := pending.Wait(ctx)
	if err != nil {
		return err
	}
	if result == nil || raw == nil || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// SendNotification queues a message without an id. It returns once the frame
// is queued; use Flush to wait until it is written.
func (s *Session) SendNotification(method string, params interface{}) error {
	jsonParams, err := marshalRaw(params)
	if err != nil {
		return fmt.Errorf("failed to marshal notification params: %w", err)
	}
	return s.enqueue(outbound{msg: &Message{
		Method:    &method,
		Params:    jsonParams,
		Session:   s,
		Timestamp: time.Now(),
	}})
}

// SendResponse answers an inbound Request. A Go error becomes a JSON-RPC
// error object; a nil result with a nil error is sent as a null result.
func (s *Session) SendResponse(msgId *schema.RequestID, result interface{}, err error) {
	msg := &Message{
		ID:        msgId,
		Session:   s,
		Timestamp: time.Now(),
	}
	if err != nil {
		msg.Error = NewJSONRPCError(err)
	} else {
		jsonResult, marshalErr := marshalRaw(result)
		if marshalErr != nil {
			s.Logger.Error("Failed to marshal response result", zap.Error(marshalErr), zap.String("message_id", msgId.String()))
			msg.Error = &JSONRPCError{
				Code:    JSONRPCErrorInternal,
				Message: fmt.Sprintf("Failed to marshal result: %v", marshalErr),
			}
		} else {
			if jsonResult == nil {
				null := json.RawMessage("null")
				jsonResult = &null
			}
			msg.Result = jsonResult
		}
	}

	if err := s.enqueue(outbound{msg: msg}); err != nil {
		s.Logger.Warn("Cannot send response", zap.String("message_id", msgId.String()), zap.Error(err))
	}
}

// Flush blocks until every frame queued before the call has been written.
func (s *Session) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	if err := s.enqueue(outbound{flushed: flushed}); err != nil {
		return err
	}
	select {
	case <-flushed:
		return nil
	case <-s.writeFailed:
		return s.writeErr
	case <-s.writerDone:
		select {
		case <-flushed:
			return nil
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting output, waits for the writer to drain the queue and
// fails requests still waiting for a Response. The input stream is left to
// its owner.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return nil
	}
	started := s.status == StatusRunning
	s.status = StatusClosed
	close(s.output)
	s.mu.Unlock()

	if started {
		<-s.writerDone
	}
	s.RequestManager.FailAll(ErrSessionClosed)
	s.Logger.Debug("Session closed")
	return nil
}
