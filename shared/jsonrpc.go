package shared

import (
	"encoding/json"
	"fmt"

	"github.com/neyho/eywa-go/shared/schema"
)

const (
	JSONRPCVersion = "2.0"

	// Standard JSON-RPC 2.0 error codes
	JSONRPCErrorParseError     = -32700 // Invalid JSON was received
	JSONRPCErrorInvalidRequest = -32600 // The JSON sent is not a valid Request object
	JSONRPCErrorMethodNotFound = -32601 // The method does not exist / is not available
	JSONRPCErrorInvalidParams  = -32602 // Invalid method parameter(s)
	JSONRPCErrorInternal       = -32603 // Internal JSON-RPC error

	// -32000 to -32099 are reserved for implementation-defined server errors
	JSONRPCErrorServerError = -32000 // Generic server error

	JSONRPCErrorThrottled = -32005 // Inbound request rate exceeded
)

// Well-known orchestrator methods.
const (
	MethodTaskGet    = "task.get"
	MethodTaskUpdate = "task.update"
	MethodTaskClose  = "task.close"
	MethodTaskReturn = "task.return"
	MethodTaskLog    = "task.log"
	MethodTaskReport = "task.report"
	MethodGraphQL    = "eywa.datasets.graphql"
)

type JSONRPCErrorResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *schema.RequestID `json:"id"`
	Error   *JSONRPCError     `json:"error"`
}

// JSONRPCResponse represents the structure for sending successful JSON-RPC responses.
type JSONRPCResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *schema.RequestID `json:"id"` // Must be present and same as request ID
	Result  *json.RawMessage  `json:"result"`
}

// JSONRPCRequest covers both requests (ID set) and notifications (ID nil).
type JSONRPCRequest struct {
	JSONRPC string            `json:"jsonrpc"` // Must be "2.0"
	Method  *string           `json:"method"`
	Params  *json.RawMessage  `json:"params,omitempty"`
	ID      *schema.RequestID `json:"id,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object. A Response carrying an
// error field is surfaced to the caller as this type.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error type code
	Message string      `json:"message"`        // Short error description
	Data    interface{} `json:"data,omitempty"` // Additional error information
}

// RemoteError is the error returned to callers whose request was answered
// with an error Response.
type RemoteError = JSONRPCError

// Error implements the Go error interface for JSONRPCError.
func (e *JSONRPCError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Data != nil {
		return fmt.Sprintf("%d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func NewJSONRPCError(err error) *JSONRPCError {
	if err == nil {
		return nil
	}
	if rpcErr, ok := err.(*JSONRPCError); ok {
		return rpcErr
	}
	return &JSONRPCError{
		Code:    JSONRPCErrorInternal,
		Message: err.Error(),
	}
}
