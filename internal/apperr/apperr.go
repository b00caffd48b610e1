// Package apperr classifies failures into the two branches the HTTP layer
// cares about: operational errors, whose message and status are safe to
// return to callers, and everything else, which is logged in full and
// reported as a bare 500.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the operational category of an error.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindNotImplemented
)

// Error is an operational error with a caller-safe message. Internal-kind
// errors are not operational: their message is never exposed.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Operational reports whether the message is safe to return to callers.
func (e *Error) Operational() bool { return e.Kind != KindInternal }

// HTTPStatus maps the kind to its response status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// NotFound builds a 404 error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a 400 error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a 409 error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotImplemented builds a 501 error.
func NotImplemented(format string, args ...any) *Error {
	return &Error{Kind: KindNotImplemented, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected error. Its message is logged but callers
// only ever see "Internal server error".
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// Wrap attaches a cause to an operational error built elsewhere.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// From extracts the *Error from err's chain, or nil if there is none.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}
