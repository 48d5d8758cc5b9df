// Package jsonrpc implements the JSON-RPC 2.0 message layer ferrule uses to
// talk to stdio server processes: the message types and the Content-Length
// framed codec (the header-length-prefixed wire variant used by language
// servers).
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version sent on every message
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is an outbound JSON-RPC 2.0 request or notification.
// A zero ID is omitted on the wire, which is what marks a notification;
// real request ids are allocated starting from 1.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// NewRequest builds a request carrying the given correlation id
func NewRequest(id int64, method string, params interface{}) *Request {
	return &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// NewNotification builds a fire-and-forget message with no id
func NewNotification(method string, params interface{}) *Request {
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
	}
}

// Message is a decoded inbound frame. Servers send three shapes over the
// same stream: responses to our requests (id, result or error), their own
// requests (id and method), and notifications (method, no id). The pointer
// ID distinguishes "no id field" from "id": 0.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsResponse reports whether the message answers one of our requests
func (m *Message) IsResponse() bool {
	return m.ID != nil && m.Method == ""
}

// IsNotification reports whether the message is server-initiated with no id
func (m *Message) IsNotification() bool {
	return m.ID == nil && m.Method != ""
}

// IsServerRequest reports whether the server expects a reply from us
func (m *Message) IsServerRequest() bool {
	return m.ID != nil && m.Method != ""
}

// Error is a JSON-RPC 2.0 error object carried in a response
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}
