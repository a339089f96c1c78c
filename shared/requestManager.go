package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/neyho/eywa-go/shared/schema"
	"go.uber.org/zap"
)

// PendingRequest is an outbound request waiting for its Response.
type PendingRequest struct {
	ID        schema.RequestID
	Method    string
	CreatedAt time.Time

	done     chan struct{}
	once     sync.Once
	response *Message
	err      error
	manager  *RequestManager
}

func (p *PendingRequest) fulfil(msg *Message, err error) {
	p.once.Do(func() {
		p.response = msg
		p.err = err
		close(p.done)
	})
}

// Done is closed once the request has been answered or failed.
func (p *PendingRequest) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the Response arrives, the session fails, or ctx is done.
// A Response with an error member is returned as *JSONRPCError. When ctx ends
// first the request is abandoned locally; its late Response is dropped.
func (p *PendingRequest) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		if p.manager != nil {
			p.manager.Abandon(&p.ID)
		}
		select {
		case <-p.done:
		default:
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.response.Error != nil {
		return nil, p.response.Error
	}
	if p.response.Result == nil {
		return nil, nil
	}
	return *p.response.Result, nil
}

// RequestManager is the table of outbound requests awaiting a Response.
type RequestManager struct {
	requests map[string]*PendingRequest
	mu       sync.Mutex
	logger   *zap.Logger
	onChange func(pending int)
}

// NewRequestManager creates a new RequestManager instance.
func NewRequestManager(logger *zap.Logger) *RequestManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestManager{
		requests: make(map[string]*PendingRequest),
		logger:   logger,
	}
}

// RegisterRequest stores a pending entry for id. Registering an id that is
// already pending is a programming error and panics.
func (rm *RequestManager) RegisterRequest(id *schema.RequestID, method string) *PendingRequest {
	p := &PendingRequest{
		ID:        *id,
		Method:    method,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
		manager:   rm,
	}

	rm.mu.Lock()
	key := id.String()
	if _, exists := rm.requests[key]; exists {
		rm.mu.Unlock()
		panic(fmt.Sprintf("duplicate request id %s", key))
	}
	rm.requests[key] = p
	n := len(rm.requests)
	rm.mu.Unlock()

	rm.logger.Debug("RegisterRequest", zap.String("message_id", key), zap.String("method", method), zap.Int("requests_len", n))
	rm.changed(n)
	return p
}

// ProcessResponse resolves or rejects the pending request matching msg.ID.
// It returns false when no request with that id is pending.
func (rm *RequestManager) ProcessResponse(msg *Message) bool {
	if msg.ID.IsEmpty() {
		rm.logger.Error("No message ID found")
		return false
	}
	key := msg.ID.String()

	rm.mu.Lock()
	request, exists := rm.requests[key]
	if exists {
		delete(rm.requests, key)
	}
	n := len(rm.requests)
	rm.mu.Unlock()

	if !exists {
		rm.logger.Debug("No pending request for response", zap.String("message_id", key))
		return false
	}

	request.fulfil(msg, nil)
	msg.Processed = true
	rm.logger.Debug("Response matched pending request",
		zap.String("message_id", key),
		zap.String("method", request.Method),
		zap.Duration("latency", time.Since(request.CreatedAt)),
		zap.Int("requests_len", n))
	rm.changed(n)
	return true
}

// Abandon forgets a pending request without fulfilling it.
func (rm *RequestManager) Abandon(id *schema.RequestID) {
	key := id.String()
	rm.mu.Lock()
	_, exists := rm.requests[key]
	delete(rm.requests, key)
	n := len(rm.requests)
	rm.mu.Unlock()
	if exists {
		rm.logger.Debug("Pending request abandoned", zap.String("message_id", key))
		rm.changed(n)
	}
}

// Fail rejects the pending request id with err. It returns false when no
// request with that id is pending.
func (rm *RequestManager) Fail(id *schema.RequestID, err error) bool {
	key := id.String()
	rm.mu.Lock()
	request, exists := rm.requests[key]
	delete(rm.requests, key)
	n := len(rm.requests)
	rm.mu.Unlock()
	if !exists {
		return false
	}
	request.fulfil(nil, err)
	rm.changed(n)
	return true
}

// FailAll rejects every pending request with err.
func (rm *RequestManager) FailAll(err error) {
	rm.mu.Lock()
	requests := rm.requests
	rm.requests = make(map[string]*PendingRequest)
	rm.mu.Unlock()

	for key, request := range requests {
		rm.logger.Debug("Failing pending request", zap.String("message_id", key), zap.Error(err))
		request.fulfil(nil, err)
	}
	if len(requests) > 0 {
		rm.changed(0)
	}
}

// Pending returns the number of requests awaiting a Response.
func (rm *RequestManager) Pending() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.requests)
}

func (rm *RequestManager) changed(n int) {
	if rm.onChange != nil {
		rm.onChange(n)
	}
}
