// Package errors provides the typed error taxonomy used across the quickreply
// engine. Every failure surfaced by a manager or the storage layer is one of
// the kinds defined here, so callers can branch on the category without
// parsing messages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind categorizes an error for programmatic handling.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindStorage    Kind = "STORAGE"
	KindMigration  Kind = "MIGRATION"
)

// Error is the concrete error type carried through the engine. Op names the
// failing operation, Message is the stable human-readable description, and
// Err holds the underlying cause, if any.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind that wraps an underlying cause.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Validation creates a KindValidation error.
func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, format, args...)
}

// NotFound creates a KindNotFound error.
func NotFound(op, format string, args ...any) *Error {
	return New(KindNotFound, op, format, args...)
}

// Conflict creates a KindConflict error.
func Conflict(op, format string, args ...any) *Error {
	return New(KindConflict, op, format, args...)
}

// Storage creates a KindStorage error wrapping the underlying I/O failure.
func Storage(op, message string, err error) *Error {
	return Wrap(KindStorage, op, message, err)
}

// Migration creates a KindMigration error.
func Migration(op, format string, args ...any) *Error {
	return New(KindMigration, op, format, args...)
}

// KindOf returns the kind of err, or the empty Kind when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
