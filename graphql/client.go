// Package graphql carries GraphQL documents to the orchestrator over the
// eywa.datasets.graphql JSON-RPC method.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neyho/eywa-go/shared"
	"go.uber.org/zap"
)

// Caller sends one JSON-RPC request and decodes its result. *shared.Session
// implements it.
type Caller interface {
	Call(ctx context.Context, method string, params interface{}, result interface{}) error
}

var _ Caller = (shared.ISession)(nil)

// Request is the params object of eywa.datasets.graphql.
type Request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// Response is the result object of eywa.datasets.graphql. The orchestrator
// reports failures either under "error" or under the GraphQL "errors" key.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
	Errors json.RawMessage `json:"errors,omitempty"`
}

// Err returns the GraphQL-level error carried by the response, if any.
func (r *Response) Err() *Error {
	payload := r.Error
	if isEmpty(payload) {
		payload = r.Errors
	}
	if isEmpty(payload) {
		return nil
	}
	return &Error{Payload: payload, Messages: messages(payload)}
}

// Error is a GraphQL-level failure. It is distinct from a transport failure
// and from a JSON-RPC error Response.
type Error struct {
	Operation string
	Payload   json.RawMessage
	Messages  []string
}

func (e *Error) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" {
		msg = string(e.Payload)
	}
	if e.Operation != "" {
		return fmt.Sprintf("graphql %s: %s", e.Operation, msg)
	}
	return "graphql: " + msg
}

type Client struct {
	caller Caller
	logger *zap.Logger
}

func NewClient(caller Caller, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{caller: caller, logger: logger}
}

// Execute sends the document and returns the raw response. A GraphQL-level
// error is returned as *Error together with the response.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]interface{}) (*Response, error) {
	var resp Response
	if err := c.caller.Call(ctx, shared.MethodGraphQL, &Request{Query: query, Variables: variables}, &resp); err != nil {
		return nil, err
	}
	if gqlErr := resp.Err(); gqlErr != nil {
		gqlErr.Operation = operationName(query)
		c.logger.Debug("GraphQL error", zap.String("operation", gqlErr.Operation), zap.Strings("messages", gqlErr.Messages))
		return &resp, gqlErr
	}
	return &resp, nil
}

// Query executes the document and decodes the data object into out.
func (c *Client) Query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	resp, err := c.Execute(ctx, query, variables)
	if err != nil {
		return err
	}
	if out == nil || isEmpty(resp.Data) {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}

// Field executes the document and decodes data[field] into out. It reports
// false when the field is missing or null, which is how the orchestrator
// answers lookups of unknown entities.
func (c *Client) Field(ctx context.Context, query string, variables map[string]interface{}, field string, out interface{}) (bool, error) {
	var data map[string]json.RawMessage
	if err := c.Query(ctx, query, variables, &data); err != nil {
		return false, err
	}
	raw, ok := data[field]
	if !ok || isEmpty(raw) {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode graphql field %s: %w", field, err)
	}
	return true, nil
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// messages extracts human readable messages from a string, an object with a
// message member, or a list of either.
func messages(payload json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return []string{s}
	}
	var one struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &one); err == nil && one.Message != "" {
		return []string{one.Message}
	}
	var many []json.RawMessage
	if err := json.Unmarshal(payload, &many); err == nil {
		var out []string
		for _, item := range many {
			out = append(out, messages(item)...)
		}
		return out
	}
	return nil
}

// operationName returns the name of the first operation in query, or its
// keyword when the operation is anonymous.
func operationName(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\t' || r == '\r' || r == '(' || r == '{'
	})
	for i, f := range fields {
		if f == "query" || f == "mutation" || f == "subscription" {
			if i+1 < len(fields) {
				return fields[i+1]
			}
			return f
		}
	}
	return ""
}
