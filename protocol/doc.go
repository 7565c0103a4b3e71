// Package protocol defines the JSON-RPC 2.0 message types and error catalog.
//
// This package provides the low-level wire structures used by jsonrpc-go.
// Most users should use the higher-level jsonrpc package instead.
//
// # Requests
//
// A Request carries a method name and positional params. A request without
// an id is a notification and never receives a response:
//
//	req, err := protocol.ParseRequest(line)
//	if err != nil {
//	    // wraps ErrParse for malformed JSON, ErrInvalidRequest otherwise
//	}
//	params, err := req.PositionalParams()
//
// Named (object) params and batch arrays are not supported and are reported
// as invalid requests.
//
// # Responses
//
// A Response always encodes an id (null when unknown) and exactly one of
// result or error.
//
// # Error Catalog
//
//	ErrParse          -32700  Parse error
//	ErrInvalidRequest -32600  Invalid Request
//	ErrMethodNotFound -32601  Method not found
//	ErrInvalidParams  -32602  Invalid params
//	ErrInternal       -32603  Internal error
//	ErrServer         -32000  Server error
//
// FromError maps handler failures onto the catalog: *Error values pass
// through verbatim, anything else becomes an internal error.
package protocol
