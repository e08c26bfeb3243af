// Package mcp implements the JSON-RPC 2.0 transport: protocol objects,
// single and batch dispatch with a legacy 1.0 fallback, the standard method
// handlers, and the cached tool manifest.
package mcp

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 standard error codes. Codes in [-32099,-32000] are reserved
// for server-defined errors.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is an incoming JSON-RPC message. A nil ID denotes a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  map[string]any  `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Notification reports whether the request carries no id.
func (r *Request) Notification() bool { return len(r.ID) == 0 }

// Response is an outgoing JSON-RPC message. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  map[string]any  `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// ErrorObject is the error member of a failed response.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// TransportError is an error carrying an explicit JSON-RPC code. Handlers
// return it when they need a code other than the default mapping.
type TransportError struct {
	Code    int
	Message string
	Data    any
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewTransportError builds a TransportError with a formatted message.
func NewTransportError(code int, format string, args ...any) *TransportError {
	return &TransportError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func successResponse(id json.RawMessage, result map[string]any) *Response {
	return &Response{JSONRPC: "2.0", Result: result, ID: id}
}

func errorResponse(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: "2.0",
		Error:   &ErrorObject{Code: code, Message: message, Data: data},
		ID:      id,
	}
}
