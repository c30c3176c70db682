// Package dagerr gives every error the kernel returns a Code drawn from a
// flat, per-subsystem enumeration: Parameter, Model, Common, Device and
// Runtime errors each get a contiguous range so that callers can bucket
// failures by kind without parsing error strings.
package dagerr

import "fmt"

// Code identifies the subsystem and kind of an Error.
type Code int

const (
	// CodeUnknown is the zero value; never returned deliberately.
	CodeUnknown Code = 0

	// Parameter errors: 100-199.
	CodeParamNull     Code = 100
	CodeParamBadValue Code = 101
	CodeParamBadName  Code = 102
	CodeParamBadFormat Code = 103

	// Model errors: 200-299.
	CodeModelParse   Code = 200
	CodeModelCompile Code = 201

	// Common errors: 300-399.
	CodeCommonOOM     Code = 300
	CodeCommonBadFile Code = 301

	// Device errors: 400-499.
	CodeDeviceUnsupported Code = 400
	CodeDeviceInvalid     Code = 401

	// Runtime errors: 500-599.
	CodeRuntimeNodeFailed     Code = 500
	CodeRuntimeCycle          Code = 501
	CodeRuntimeMissingStart   Code = 502
	CodeRuntimeThreadPool     Code = 503
	CodeRuntimeNotImplemented Code = 504
)

// Error is the concrete error type returned by this module. It carries a
// Code and wraps an optional underlying cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New builds an Error with no wrapped cause.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error that wraps an existing error.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (code=%d): %v", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s (code=%d)", e.Message, e.Code)
}

// Unwrap lets errors.Is / errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Code == code
}
