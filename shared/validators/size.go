package validators

import (
	"fmt"
	"sync"

	"github.com/neyho/eywa-go/shared"
)

// MaxIDLength bounds the JSON encoding of an inbound id.
const MaxIDLength = 256

// MessageSizeValidator validates the size of incoming messages
type MessageSizeValidator struct {
	maxSize int64
	mu      sync.RWMutex
}

// NewMessageSizeValidator creates a new message size validator. maxSize <= 0
// only enforces the id length.
func NewMessageSizeValidator(maxSize int64) *MessageSizeValidator {
	return &MessageSizeValidator{
		maxSize: maxSize,
	}
}

// SetMaxSize updates the maximum allowed message size
func (v *MessageSizeValidator) SetMaxSize(maxSize int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.maxSize = maxSize
}

// Validate implements the MessageValidator interface
func (v *MessageSizeValidator) Validate(msg *shared.Message) error {
	if !msg.ID.IsEmpty() && len(msg.ID.String()) > MaxIDLength {
		return fmt.Errorf("message ID exceeds maximum allowed length (%d bytes)", MaxIDLength)
	}
	if msg.Params == nil {
		return nil
	}

	v.mu.RLock()
	maxSize := v.maxSize
	v.mu.RUnlock()

	if maxSize > 0 && int64(len(*msg.Params)) > maxSize {
		return &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorInvalidParams,
			Message: fmt.Sprintf("params of %d bytes exceed the limit of %d", len(*msg.Params), maxSize),
		}
	}
	return nil
}
