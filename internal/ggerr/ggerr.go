// Package ggerr defines the closed error-kind taxonomy of spec.md §7.
// Every user-visible failure carries a stable machine-readable Code and a
// human Message; HTTP status is derived from Kind in the API layer.
package ggerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind is one of the seven error kinds spec.md §7 names, plus NotFoundError
// for lookups of a missing row.
type Kind string

const (
	KindPrecondition Kind = "PreconditionError"
	KindConflict     Kind = "ConflictError"
	KindProtocol     Kind = "ProtocolError"
	KindTransient    Kind = "TransientError"
	KindConfig       Kind = "ConfigError"
	KindFatal        Kind = "FatalError"
	KindCancelled    Kind = "Cancelled"
	KindNotFound     Kind = "NotFoundError"
)

// Error is a kinded, coded, wrapped error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind. code is the stable
// machine-readable identifier surfaced to API callers.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an Error of the given kind around an existing cause,
// attaching a stack trace via cockroachdb/errors at the point it first
// crosses a component boundary.
func Wrap(kind Kind, code string, cause error, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: errors.Wrap(cause, message)}
}

// KindOf extracts the Kind of err, walking the chain. Returns ("", false)
// if err (or anything it wraps) is not a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func Precondition(code, message string) *Error { return New(KindPrecondition, code, message) }
func Conflict(code, message string) *Error     { return New(KindConflict, code, message) }
func Protocol(code, message string) *Error     { return New(KindProtocol, code, message) }
func NotFound(code, message string) *Error     { return New(KindNotFound, code, message) }
func Transient(code string, cause error) *Error {
	return Wrap(KindTransient, code, cause, "transient failure")
}
func Config(code string, cause error) *Error {
	return Wrap(KindConfig, code, cause, "configuration rejected")
}
func Fatal(code string, cause error) *Error {
	return Wrap(KindFatal, code, cause, "fatal failure")
}
func Cancelled(code string, cause error) *Error {
	return Wrap(KindCancelled, code, cause, "cancelled")
}
