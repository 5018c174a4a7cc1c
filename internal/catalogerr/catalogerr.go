// Package catalogerr defines the typed error taxonomy shared by every
// Execution Core component, modeled after the error kinds of section 7
// of the core specification.
package catalogerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can branch on it without string
// matching, and so the Service API can translate it to a transport
// status code.
type Kind string

const (
	KindInvalid           Kind = "invalid"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindPreconditionFailed Kind = "precondition_failed"
	KindAuthFailed        Kind = "auth_failed"
	KindTransient         Kind = "transient"
	KindFatal             Kind = "fatal"
)

// Error is the concrete error type carried through the Core. It wraps
// an optional underlying cause so %w unwrapping keeps working.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

func newf(k Kind, format string, args ...any) *Error {
	return &Error{kind: k, msg: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...any) *Error            { return newf(KindInvalid, format, args...) }
func NotFound(format string, args ...any) *Error           { return newf(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error           { return newf(KindConflict, format, args...) }
func PreconditionFailed(format string, args ...any) *Error { return newf(KindPreconditionFailed, format, args...) }
func AuthFailed(format string, args ...any) *Error         { return newf(KindAuthFailed, format, args...) }
func Transient(format string, args ...any) *Error          { return newf(KindTransient, format, args...) }
func Fatal(format string, args ...any) *Error              { return newf(KindFatal, format, args...) }

// Wrap attaches a kind and cause to an underlying error, preserving the
// cause for errors.Is/errors.As chains.
func Wrap(k Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: k, msg: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindFatal when err
// does not carry one of our typed errors — an untyped error reaching a
// boundary is itself a bug, so the conservative classification applies.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindFatal
}

// Is reports whether err (or something it wraps) carries kind k.
func Is(err error, k Kind) bool { return KindOf(err) == k }
