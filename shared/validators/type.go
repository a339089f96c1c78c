package validators

import (
	"fmt"
	"strings"

	"github.com/neyho/eywa-go/shared"
)

// ShapeValidator checks the envelope of an inbound frame: the protocol
// version, when given, and the method name of requests and notifications.
type ShapeValidator struct{}

func NewShapeValidator() *ShapeValidator {
	return &ShapeValidator{}
}

// Validate implements the MessageValidator interface
func (v *ShapeValidator) Validate(msg *shared.Message) error {
	if msg.JSONRPC != "" && msg.JSONRPC != shared.JSONRPCVersion {
		return fmt.Errorf("unsupported jsonrpc version %q", msg.JSONRPC)
	}
	if msg.Method != nil {
		method := *msg.Method
		if method == "" {
			return fmt.Errorf("method is empty")
		}
		// rpc.* is reserved by JSON-RPC 2.0 for protocol extensions.
		if strings.HasPrefix(method, "rpc.") {
			return &shared.JSONRPCError{
				Code:    shared.JSONRPCErrorMethodNotFound,
				Message: fmt.Sprintf("Method not found: %s", method),
			}
		}
	} else if msg.ID.IsEmpty() {
		return fmt.Errorf("method and id is empty")
	}
	return nil
}
