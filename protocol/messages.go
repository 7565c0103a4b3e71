package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the JSON-RPC protocol version.
const Version = "2.0"

var jsonNull = []byte("null")

// Request represents a JSON-RPC 2.0 request.
// A request without an ID is a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification returns true if this request has no ID (is a notification).
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Validate checks the request envelope. The returned error wraps
// ErrInvalidRequest and describes the first violation found.
func (r *Request) Validate() error {
	if r.JSONRPC != Version {
		return fmt.Errorf("%w: jsonrpc must be %q, got %q", ErrInvalidRequest, Version, r.JSONRPC)
	}
	if r.Method == "" {
		return fmt.Errorf("%w: method is required", ErrInvalidRequest)
	}
	if !validID(r.ID) {
		return fmt.Errorf("%w: id must be a string, number or null", ErrInvalidRequest)
	}
	if !validParams(r.Params) {
		return fmt.Errorf("%w: params must be an array", ErrInvalidRequest)
	}
	return nil
}

// PositionalParams decodes the request params as a positional list.
// Absent or null params yield an empty list.
func (r *Request) PositionalParams() (Params, error) {
	return ParseParams(r.Params)
}

// EchoID returns the id to use in a reply to r. An id of an invalid type
// cannot be echoed and is reported as null.
func (r *Request) EchoID() json.RawMessage {
	if r == nil || !validID(r.ID) {
		return nil
	}
	return r.ID
}

func validID(id json.RawMessage) bool {
	id = bytes.TrimSpace(id)
	if len(id) == 0 {
		return true
	}
	switch c := id[0]; {
	case c == '"', c == '-', c >= '0' && c <= '9':
		return true
	default:
		return bytes.Equal(id, jsonNull)
	}
}

func validParams(params json.RawMessage) bool {
	params = bytes.TrimSpace(params)
	return len(params) == 0 || params[0] == '[' || bytes.Equal(params, jsonNull)
}

// ParseRequest decodes a textual request.
//
// Input that is not valid JSON yields an error wrapping ErrParse. Valid JSON
// that does not describe a single request object (a batch array, a bare
// scalar, mistyped members) yields an error wrapping ErrInvalidRequest; in
// that case the returned request carries whatever id could be recovered so
// the caller can still correlate its reply.
func ParseRequest(data []byte) (*Request, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrParse)
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		var probe struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.Unmarshal(data, &probe)
		return &Request{ID: probe.ID}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return &req, nil
}

// Responder receives the single response produced for a call.
type Responder func(*Response)

// Response represents a JSON-RPC 2.0 response.
// Exactly one of Result and Error is meaningful; Error wins when both are set.
type Response struct {
	JSONRPC string
	ID      json.RawMessage
	Result  any
	Error   *Error
}

// NewResponse creates a successful response.
func NewResponse(id json.RawMessage, result any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   err,
	}
}

type resultEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type errorEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *Error          `json:"error"`
}

// MarshalJSON always emits an id (null when the request had none) and
// exactly one of result or error.
func (r Response) MarshalJSON() ([]byte, error) {
	id := r.ID
	if len(id) == 0 {
		id = jsonNull
	}
	version := r.JSONRPC
	if version == "" {
		version = Version
	}
	if r.Error != nil {
		return json.Marshal(errorEnvelope{JSONRPC: version, ID: id, Error: r.Error})
	}
	return json.Marshal(resultEnvelope{JSONRPC: version, ID: id, Result: r.Result})
}

// UnmarshalJSON decodes a response; the result is kept as json.RawMessage.
func (r *Response) UnmarshalJSON(data []byte) error {
	var env struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *Error          `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Error != nil && env.Result != nil {
		return errors.New("response carries both result and error")
	}

	r.JSONRPC = env.JSONRPC
	r.ID = env.ID
	r.Error = env.Error
	r.Result = nil
	if env.Result != nil {
		r.Result = env.Result
	}
	return nil
}

// Notification is a server-initiated message that expects no response.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  Params `json:"params"`
}

// NewNotification builds a notification with positional params.
func NewNotification(method string, params ...any) (*Notification, error) {
	p, err := NewParams(params...)
	if err != nil {
		return nil, err
	}
	return &Notification{JSONRPC: Version, Method: method, Params: p}, nil
}
