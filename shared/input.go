package shared

import (
	"errors"
	"fmt"
	"sync"

	"github.com/neyho/eywa-go/shared/metrics"
	"go.uber.org/zap"
)

// errResponseDeferred is returned by handlers wrapped with Async; the
// Response is sent from the handler goroutine instead of the dispatcher.
var errResponseDeferred = errors.New("response deferred")

type MessageValidator interface {
	Validate(*Message) error
}

// Input is the handler registry and dispatcher for inbound frames. Handlers
// may be added, replaced or removed at any time, also while frames are being
// dispatched.
type Input struct {
	mu              sync.RWMutex
	logger          *zap.Logger
	metrics         *metrics.Metrics
	validators      []MessageValidator
	methodHandlers  map[string]HandlerFunc
	notFoundHandler HandlerFunc
	capabilities    []ICapability
}

func NewInput(logger *zap.Logger) *Input {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Input{
		logger:         logger,
		methodHandlers: make(map[string]HandlerFunc),
	}
}

// SetMetrics attaches collectors for protocol error counts.
func (i *Input) SetMetrics(m *metrics.Metrics) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.metrics = m
}

// AddHandler registers handler for method, replacing any previous one.
func (i *Input) AddHandler(method string, handler HandlerFunc) {
	i.mu.Lock()
	_, replaced := i.methodHandlers[method]
	i.methodHandlers[method] = handler
	i.mu.Unlock()
	i.logger.Debug("Registered handler", zap.String("method", method), zap.Bool("replaced", replaced))
}

// RemoveHandler unregisters the handler for method. Removing an unknown
// method is a no-op.
func (i *Input) RemoveHandler(method string) {
	i.mu.Lock()
	delete(i.methodHandlers, method)
	i.mu.Unlock()
}

// AddNotFoundHandler registers a handler for methods that don't have a specific handler
func (i *Input) AddNotFoundHandler(handler HandlerFunc) {
	i.mu.Lock()
	i.notFoundHandler = handler
	i.mu.Unlock()
	i.logger.Debug("Registered not-found handler")
}

// GetHandler returns the handler registered for method. It does not consult
// the not-found handler.
func (i *Input) GetHandler(method string) (HandlerFunc, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	handler, exists := i.methodHandlers[method]
	return handler, exists
}

// Methods returns the number of registered handlers.
func (i *Input) Methods() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.methodHandlers)
}

// AddValidator adds custom message validators
func (i *Input) AddValidator(validators ...MessageValidator) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.validators = append(i.validators, validators...)
}

// AddCapability registers every handler of each capability.
func (i *Input) AddCapability(capabilities ...ICapability) {
	for _, capability := range capabilities {
		i.mu.Lock()
		i.capabilities = append(i.capabilities, capability)
		i.mu.Unlock()
		for method, handler := range capability.GetHandlers() {
			i.AddHandler(method, handler)
		}
	}
}

// Dispatch routes one inbound frame. Responses resolve pending requests of
// the frame's session; Requests and Notifications go to their handler, which
// runs on the calling goroutine. Requests always get a Response.
func (i *Input) Dispatch(msg *Message) {
	i.mu.RLock()
	validators := make([]MessageValidator, len(i.validators))
	copy(validators, i.validators)
	i.mu.RUnlock()

	kind := msg.Kind()
	for _, validator := range validators {
		if err := validator.Validate(msg); err != nil {
			i.protocolError(&ProtocolError{Kind: ProtocolValidationFailed, Method: NilIfNil(msg.Method), ID: idString(msg), Err: err})
			if kind == KindRequest && msg.Session != nil {
				rpcErr, ok := err.(*JSONRPCError)
				if !ok {
					rpcErr = &JSONRPCError{Code: JSONRPCErrorInvalidRequest, Message: err.Error()}
				}
				msg.Session.SendResponse(msg.ID, nil, rpcErr)
			}
			return
		}
	}

	switch kind {
	case KindResponse:
		if msg.Session == nil {
			i.logger.Error("Response without session", zap.String("message_id", msg.ID.String()))
			return
		}
		if !msg.Session.GetRequestManager().ProcessResponse(msg) {
			i.protocolError(&ProtocolError{Kind: ProtocolUnmatchedID, ID: msg.ID.String()})
		}
	case KindRequest, KindNotification:
		i.handle(msg, kind)
	default:
		i.protocolError(&ProtocolError{
			Kind:   ProtocolInvalidMessage,
			Method: NilIfNil(msg.Method),
			ID:     idString(msg),
			Err:    errors.New("frame is neither request, notification nor response"),
		})
	}
}

func (i *Input) handle(msg *Message, kind Kind) {
	method := *msg.Method
	logger := i.logger.With(zap.String("method", method))

	handler, exists := i.GetHandler(method)
	if !exists {
		i.mu.RLock()
		handler = i.notFoundHandler
		i.mu.RUnlock()
	}
	if handler == nil {
		i.protocolError(&ProtocolError{Kind: ProtocolNoHandler, Method: method, ID: idString(msg)})
		if kind == KindRequest && msg.Session != nil {
			msg.Session.SendResponse(msg.ID, nil, &JSONRPCError{
				Code:    JSONRPCErrorMethodNotFound,
				Message: fmt.Sprintf("Method not found: %s", method),
			})
		}
		return
	}

	result, err := invoke(handler, msg)
	if errors.Is(err, errResponseDeferred) {
		return
	}
	if kind == KindRequest {
		if msg.Session != nil {
			msg.Session.SendResponse(msg.ID, result, err)
		}
	} else if err != nil {
		logger.Error("Error handling notification", zap.Error(err))
	}
	msg.Processed = true
	logger.Debug("Processed message", zap.String("message_id", idString(msg)))
}

// invoke runs handler and turns a panic into an error.
func invoke(handler HandlerFunc, msg *Message) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic in handler for %s: %v", NilIfNil(msg.Method), r)
		}
	}()
	return handler(msg)
}

func (i *Input) protocolError(perr *ProtocolError) {
	i.mu.RLock()
	m := i.metrics
	i.mu.RUnlock()
	m.ProtocolError(string(perr.Kind))
	if perr.Kind == ProtocolUnmatchedID || perr.Kind == ProtocolNoHandler {
		i.logger.Warn("Ignoring inbound frame", zap.Error(perr))
		return
	}
	i.logger.Error("Rejected inbound frame", zap.Error(perr))
}

// Async wraps handler so it runs on its own goroutine, leaving the reader
// free to dispatch further frames. Handlers that call back into the session
// and wait for a Response must be wrapped.
func Async(handler HandlerFunc) HandlerFunc {
	return func(msg *Message) (interface{}, error) {
		go func() {
			result, err := invoke(handler, msg)
			if msg.Kind() == KindRequest && msg.Session != nil {
				msg.Session.SendResponse(msg.ID, result, err)
				return
			}
			if err != nil && msg.Session != nil {
				msg.Session.GetLogger().Error("Error handling notification", zap.String("method", NilIfNil(msg.Method)), zap.Error(err))
			}
		}()
		return nil, errResponseDeferred
	}
}

func idString(msg *Message) string {
	if msg.ID.IsEmpty() {
		return ""
	}
	return msg.ID.String()
}
