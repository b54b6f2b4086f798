// Package errors defines the structured error kinds surfaced by the
// order-and-pause control core (spec §7).
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// Kind is one of the six error kinds the core ever surfaces across a
// component boundary.
type Kind string

const (
	NotFound      Kind = "NOT_FOUND"
	AlreadyExists Kind = "ALREADY_EXISTS"
	InvalidInput  Kind = "INVALID_INPUT"
	InvalidState  Kind = "INVALID_STATE"
	Conflict      Kind = "CONFLICT"
	Internal      Kind = "INTERNAL"
)

// CoreError is the structured error type every engine operation
// returns. It never carries a stack trace across the boundary, only
// the file/line of the call site that raised it.
type CoreError struct {
	Kind      Kind
	Message   string
	Details   map[string]interface{}
	Timestamp time.Time
	File      string
	Line      int
	Cause     error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// WithDetail attaches a key/value pair describing the violated
// invariant (e.g. the observed value).
func (e *CoreError) WithDetail(key string, value interface{}) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *CoreError) WithCause(cause error) *CoreError {
	e.Cause = cause
	return e
}

func newError(kind Kind, message string) *CoreError {
	_, file, line, _ := runtime.Caller(2)
	return &CoreError{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
	}
}

// New creates a CoreError of the given kind.
func New(kind Kind, message string) *CoreError {
	_, file, line, _ := runtime.Caller(1)
	return &CoreError{Kind: kind, Message: message, Timestamp: time.Now(), File: file, Line: line}
}

// Newf creates a CoreError with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *CoreError {
	return newError(kind, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error (typically a StorageError from the
// Store) as a CoreError of the given kind, unless err is already a
// CoreError in which case it is returned with its kind preserved.
func Wrap(err error, kind Kind, message string) *CoreError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CoreError); ok {
		return ce
	}
	_, file, line, _ := runtime.Caller(1)
	return &CoreError{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
		Cause:     err,
	}
}

// Is reports whether err is a CoreError of the given kind.
func Is(err error, kind Kind) bool {
	var ce *CoreError
	if As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// As finds the first CoreError in err's chain.
func As(err error, target **CoreError) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*CoreError); ok {
		*target = ce
		return true
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return As(unwrapper.Unwrap(), target)
	}
	return false
}

// KindOf extracts the Kind of an error, or "" if it is not a CoreError.
func KindOf(err error) Kind {
	var ce *CoreError
	if As(err, &ce) {
		return ce.Kind
	}
	return ""
}
