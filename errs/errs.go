// Package errs defines the error kinds shared by every backend.
//
// All failures crossing the package boundary are *Error values tagged with
// one Kind, so callers can branch with errors.Is:
//
//	if errors.Is(err, errs.FunctionNotFound) {
//		...
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error. A Kind is itself an error so it can be used as
// an errors.Is target.
type Kind string

const (
	// ArgumentError malformed constructor or call arguments.
	ArgumentError Kind = "argument error"
	// FunctionNotFound the requested function is missing or not callable.
	FunctionNotFound Kind = "function not found"
	// ConversionError a value could not cross the host/JS boundary.
	ConversionError Kind = "conversion error"
	// RuntimeFailure the engine raised an exception or the process failed.
	RuntimeFailure Kind = "runtime failure"
	// ResourceError a file, temp file or subprocess could not be acquired.
	ResourceError Kind = "resource error"
)

func (k Kind) Error() string { return string(k) }

// Error is the single error type returned by runjs packages.
type Error struct {
	Kind    Kind
	Message string
	// Stack is the engine-provided trace, if any.
	Stack string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns an Error of the kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the kind with a formatted message and the cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Runtime returns a RuntimeFailure carrying the engine message and trace.
func Runtime(message, stack string) *Error {
	return &Error{Kind: RuntimeFailure, Message: message, Stack: stack}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
