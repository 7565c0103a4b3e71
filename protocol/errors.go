package protocol

import (
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Implementation-defined codes in the server error range.
const (
	CodeUnauthorized     = -32001
	CodeRateLimited      = -32002
	CodeRequestTimeout   = -32003
	CodeRequestCancelled = -32004
)

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// The error catalog. Codes and messages are part of the wire contract;
// treat these values as read-only and use WithData or the New* helpers
// to attach request-specific data.
var (
	ErrParse = &Error{
		Code:    CodeParseError,
		Message: "Parse error",
		Data:    "Invalid JSON was received by the server. An error occurred on the server while parsing the JSON text.",
	}
	ErrInvalidRequest = &Error{
		Code:    CodeInvalidRequest,
		Message: "Invalid Request",
		Data:    "The JSON sent is not a valid Request object.",
	}
	ErrMethodNotFound = &Error{
		Code:    CodeMethodNotFound,
		Message: "Method not found",
		Data:    "The method does not exist / is not available.",
	}
	ErrInvalidParams = &Error{
		Code:    CodeInvalidParams,
		Message: "Invalid params",
		Data:    "Invalid method parameter(s).",
	}
	ErrInternal = &Error{
		Code:    CodeInternalError,
		Message: "Internal error",
		Data:    "Internal JSON-RPC error.",
	}
	ErrServer = &Error{
		Code:    CodeServerError,
		Message: "Server error",
		Data:    "Something broke.",
	}
)

// Coder is implemented by errors that carry their own JSON-RPC error code.
// FromError passes such errors through with that code and their own text
// as the message. Implementing ErrorData() any supplies the data member.
type Coder interface {
	error
	ErrorCode() int
}

// ErrorCode returns e.Code.
func (e *Error) ErrorCode() int { return e.Code }

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc: %s (code: %d)", e.Message, e.Code)
}

// Is implements errors.Is comparison by error code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithData returns a copy of the error with data attached.
func (e *Error) WithData(data any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Data:    data,
	}
}

// NewParseError creates a parse error (-32700) carrying data.
func NewParseError(data any) *Error {
	return ErrParse.WithData(data)
}

// NewInvalidRequest creates an invalid request error (-32600) carrying data.
func NewInvalidRequest(data any) *Error {
	return ErrInvalidRequest.WithData(data)
}

// NewMethodNotFound creates a method not found error (-32601) carrying data.
func NewMethodNotFound(data any) *Error {
	return ErrMethodNotFound.WithData(data)
}

// NewInvalidParams creates an invalid params error (-32602) carrying data.
func NewInvalidParams(data any) *Error {
	return ErrInvalidParams.WithData(data)
}

// NewInternalError creates an internal error (-32603) carrying data.
func NewInternalError(data any) *Error {
	return ErrInternal.WithData(data)
}

// NewServerError creates a generic server error (-32000) carrying data.
func NewServerError(data any) *Error {
	return ErrServer.WithData(data)
}

// NewUnauthorized creates an unauthorized error (-32001).
func NewUnauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// NewRateLimited creates a rate limited error (-32002).
func NewRateLimited(msg string) *Error {
	return &Error{Code: CodeRateLimited, Message: msg}
}

// NewRequestTimeout creates a request timeout error (-32003).
func NewRequestTimeout(data any) *Error {
	return &Error{Code: CodeRequestTimeout, Message: "Request timed out", Data: data}
}

// NewRequestCancelled creates a request cancelled error (-32004).
func NewRequestCancelled(reason string) *Error {
	e := &Error{Code: CodeRequestCancelled, Message: "Request cancelled"}
	if reason != "" {
		e.Data = reason
	}
	return e
}

// FromError converts a failure reported by a handler into an error object.
//
// Errors that are (or wrap) an *Error pass through verbatim, and errors
// implementing Coder keep their code and message. Anything else becomes an
// internal error whose data is the original error text. A nil error maps
// to a bare internal error.
func FromError(err error) *Error {
	if err == nil {
		return ErrInternal.WithData(nil)
	}
	if rpcErr, ok := coded(err); ok {
		return rpcErr
	}
	return ErrInternal.WithData(err.Error())
}

func coded(err error) (*Error, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	var c Coder
	if !errors.As(err, &c) {
		return nil, false
	}
	e := &Error{Code: c.ErrorCode(), Message: c.Error()}
	if d, ok := c.(interface{ ErrorData() any }); ok {
		e.Data = d.ErrorData()
	}
	return e, true
}

// FromPanic converts a recovered panic value into an error object.
func FromPanic(v any) *Error {
	switch val := v.(type) {
	case *Error:
		return val
	case error:
		if rpcErr, ok := coded(val); ok {
			return rpcErr
		}
		return ErrInternal.WithData(fmt.Sprintf("panic: %v", val))
	case string:
		return ErrInternal.WithData("panic: " + val)
	default:
		return ErrInternal.WithData(fmt.Sprintf("panic: %v", val))
	}
}
