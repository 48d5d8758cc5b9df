// Package errors provides error handling for ferrule.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := conn.Call(ctx, method, params); err != nil {
//	    return errors.Wrapf(err, "call %s failed", method)
//	}
//
//	// Check against the connection taxonomy
//	if errors.Is(err, errors.ErrConnectionClosed) {
//	    // server went away while requests were in flight
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection and marking
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Mark          = crdb.Mark
	Unwrap        = crdb.Unwrap
	UnwrapOnce    = crdb.UnwrapOnce
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	Join          = crdb.Join
	CombineErrors = crdb.CombineErrors
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the subprocess RPC layer.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrTransport indicates the child process could not be spawned or a
	// pipe to it failed at the OS level
	ErrTransport = New("transport failure")

	// ErrProtocol indicates a malformed frame, an undecodable body, or a
	// JSON-RPC-level error response
	ErrProtocol = New("protocol error")

	// ErrConnectionClosed indicates the transport ended (EOF, process exit,
	// or explicit stop) while requests were pending or being written
	ErrConnectionClosed = New("connection closed")

	// ErrConnectionFailed indicates reconnect attempts were exhausted
	ErrConnectionFailed = New("connection failed")

	// ErrNotFound indicates the requested key or resource does not exist
	ErrNotFound = New("not found")
)

// IsTransport checks if an error is or wraps ErrTransport
func IsTransport(err error) bool {
	return err != nil && Is(err, ErrTransport)
}

// IsProtocol checks if an error is or wraps ErrProtocol
func IsProtocol(err error) bool {
	return err != nil && Is(err, ErrProtocol)
}

// IsConnectionClosed checks if an error is or wraps ErrConnectionClosed
func IsConnectionClosed(err error) bool {
	return err != nil && Is(err, ErrConnectionClosed)
}

// IsConnectionFailed checks if an error is or wraps ErrConnectionFailed
func IsConnectionFailed(err error) bool {
	return err != nil && Is(err, ErrConnectionFailed)
}

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// WrapTransport wraps an underlying OS or pipe error as a transport failure
func WrapTransport(err error, context string) error {
	if err == nil {
		return nil
	}
	return Wrap(Wrap(ErrTransport, err.Error()), context)
}

// WrapProtocol wraps an underlying decode error as a protocol error
func WrapProtocol(err error, context string) error {
	if err == nil {
		return nil
	}
	return Wrap(Wrap(ErrProtocol, err.Error()), context)
}

// NewProtocolf creates a protocol error with a formatted message
func NewProtocolf(format string, args ...interface{}) error {
	return Wrap(ErrProtocol, Newf(format, args...).Error())
}

// NewNotFoundf creates a not-found error with a formatted message
func NewNotFoundf(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}
