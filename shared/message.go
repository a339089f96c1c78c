package shared

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neyho/eywa-go/shared/schema"
)

// Kind is the classification of an inbound frame.
type Kind int

const (
	KindInvalid Kind = iota
	KindRequest
	KindNotification
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "invalid"
	}
}

type Message struct {
	ID        *schema.RequestID `json:"id,omitempty"`
	Timestamp time.Time         `json:"-"`
	Method    *string           `json:"method,omitempty"`
	Params    *json.RawMessage  `json:"params,omitempty"`
	// Result is non-nil whenever the frame carried a result member, including
	// an explicit JSON null.
	Result *json.RawMessage `json:"result,omitempty"`
	Error  *JSONRPCError    `json:"error,omitempty"`

	JSONRPC   string   `json:"-"`
	Processed bool     `json:"-"`
	Session   ISession `json:"-"`
}

// Kind classifies the message: a method without result or error is a
// Request (or a Notification when it has no id); an id with a result or an
// error is a Response; anything else is invalid.
func (m *Message) Kind() Kind {
	if m.Method != nil && m.Result == nil && m.Error == nil {
		if m.ID.IsEmpty() {
			return KindNotification
		}
		return KindRequest
	}
	if !m.ID.IsEmpty() && (m.Result != nil || m.Error != nil) {
		return KindResponse
	}
	return KindInvalid
}

// DecodeParams unmarshals the params member into v. Missing params leave v untouched.
func (m *Message) DecodeParams(v interface{}) error {
	if m.Params == nil || len(*m.Params) == 0 {
		return nil
	}
	return json.Unmarshal(*m.Params, v)
}

// UnmarshalJSON keeps track of member presence, which encoding/json loses
// for null values.
func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("frame is not a JSON object: %w", err)
	}
	*m = Message{Timestamp: time.Now()}

	if raw, ok := fields["jsonrpc"]; ok {
		if err := json.Unmarshal(raw, &m.JSONRPC); err != nil {
			return fmt.Errorf("invalid jsonrpc member: %w", err)
		}
	}
	if raw, ok := fields["id"]; ok && !isNull(raw) {
		var id schema.RequestID
		if err := json.Unmarshal(raw, &id); err != nil {
			return fmt.Errorf("invalid id member: %w", err)
		}
		m.ID = &id
	}
	if raw, ok := fields["method"]; ok && !isNull(raw) {
		var method string
		if err := json.Unmarshal(raw, &method); err != nil {
			return fmt.Errorf("method must be a string: %w", err)
		}
		m.Method = &method
	}
	if raw, ok := fields["params"]; ok {
		params := cloneRaw(raw)
		m.Params = &params
	}
	if raw, ok := fields["result"]; ok {
		result := cloneRaw(raw)
		m.Result = &result
	}
	if raw, ok := fields["error"]; ok && !isNull(raw) {
		var rpcErr JSONRPCError
		if err := json.Unmarshal(raw, &rpcErr); err != nil {
			return fmt.Errorf("invalid error member: %w", err)
		}
		m.Error = &rpcErr
	}
	return nil
}

// MarshalJSON writes the message in the shape implied by its fields.
func (m *Message) MarshalJSON() ([]byte, error) {
	if m.Error != nil {
		response := JSONRPCErrorResponse{
			JSONRPC: JSONRPCVersion,
			ID:      m.ID,
			Error:   m.Error,
		}
		return json.Marshal(response)
	}
	if m.Result != nil {
		response := JSONRPCResponse{
			JSONRPC: JSONRPCVersion,
			ID:      m.ID,
			Result:  m.Result,
		}
		return json.Marshal(response)
	}
	if m.Method == nil {
		return nil, errors.New("message has neither method, result nor error")
	}
	request := JSONRPCRequest{
		JSONRPC: JSONRPCVersion,
		ID:      m.ID,
		Method:  m.Method,
		Params:  m.Params,
	}
	return json.Marshal(request)
}

// ParseMessages decodes one JSON document holding either a single frame or a
// batch (array) of frames.
func ParseMessages(s ISession, data []byte) ([]*Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var messages []*Message
		if err := json.Unmarshal(trimmed, &messages); err != nil {
			return nil, fmt.Errorf("invalid JSON-RPC batch: %w", err)
		}
		out := messages[:0]
		for _, msg := range messages {
			if msg != nil {
				msg.Session = s
				out = append(out, msg)
			}
		}
		return out, nil
	}

	var singleMessage Message
	if err := json.Unmarshal(trimmed, &singleMessage); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC message: %w", err)
	}
	singleMessage.Session = s
	return []*Message{&singleMessage}, nil
}

// NilIfNil returns "nil" if the string pointer is nil, otherwise returns the pointed-to string.
func NilIfNil(s *string) string {
	if s == nil {
		return "nil"
	}
	return *s
}

func marshalRaw(v interface{}) (*json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return &raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(data)
	return &raw, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
