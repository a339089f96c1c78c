package schema

import (
	"encoding/json"
)

// RequestID is the correlation token of a JSON-RPC request. The robot always
// issues string ids, but ids received from the orchestrator may be numbers.
type RequestID struct {
	Value interface{}
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	var i interface{}
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	id.Value = i
	return nil
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Value)
}

func RequestID_FromString(value string) RequestID {
	return RequestID{Value: value}
}

// String returns the JSON encoding of the id. Two ids are the same
// correlation token exactly when their String values are equal.
func (id *RequestID) String() string {
	if id == nil || id.Value == nil {
		return "nil"
	}
	bytes, err := json.Marshal(id.Value)
	if err != nil {
		return err.Error()
	}
	return string(bytes)
}

func (id *RequestID) IsEmpty() bool {
	return id == nil || id.Value == nil
}
