// Package rtpserr implements the error taxonomy of the core (see):
// a small closed set of semantic codes that API-level callers can branch
// on, independent of the human-readable message wrapped around them.
//
// This is deliberately far smaller than a general-purpose error-code
// registry (github.com/nabbar/golib/errors, for comparison, maps codes to
// HTTP statuses and gin responses across ~6000 lines) because rtpscore has
// no HTTP surface: every caller is either the Go API directly or the
// internal receive/timer loops, which only need Code, not a status-code
// mapping.
package rtpserr

import (
	"errors"
	"fmt"
)

// Code is the semantic error category. Naming is implementation-defined.
type Code int

const (
	// InvalidArgument: malformed input from the API caller.
	InvalidArgument Code = iota
	// NotFound: entity handle refers to nothing live.
	NotFound
	// PreconditionFailed: operation not allowed in current state.
	PreconditionFailed
	// Timeout: bounded-wait operation elapsed.
	Timeout
	// Inconsistent: QoS combination is internally contradictory.
	Inconsistent
	// ResourceLimit: max_samples/max_instances exceeded with no eviction candidate.
	ResourceLimit
	// OutOfMemory: allocation failed.
	OutOfMemory
)

func (c Code) String() string {
	switch c {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case PreconditionFailed:
		return "PreconditionFailed"
	case Timeout:
		return "Timeout"
	case Inconsistent:
		return "Inconsistent"
	case ResourceLimit:
		return "ResourceLimit"
	case OutOfMemory:
		return "OutOfMemory"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is the concrete error type returned across the module's public
// API. Policy, when set through WithPolicy, names the QoS policy an
// Inconsistent error concerns (qos validation sets "RESOURCE_LIMITS").
type Error struct {
	Code    Code
	Policy  string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Policy != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Code, e.Policy, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a bare Error with no wrapped cause.
func New(code Code, format string, v ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, v...)}
}

// Wrap builds an Error around an existing cause, preserving it for
// errors.Unwrap/errors.Is chains.
func Wrap(code Code, cause error, format string, v ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, v...), cause: cause}
}

// WithPolicy annotates an Inconsistent/incompatible-QoS error with the
// name of the first failing policy (e.g. "RELIABILITY").
func (e *Error) WithPolicy(policy string) *Error {
	e.Policy = policy
	return e
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the Code from err, defaulting to InvalidArgument if err
// is not an *Error (mirroring the conservative default go-iecp5 applies
// when a caller passes something it did not construct itself).
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return InvalidArgument
}
