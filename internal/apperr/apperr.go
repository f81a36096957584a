// Package apperr defines the error taxonomy shared by all KanbanX
// operations and its mapping to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for status-code mapping.
type Kind int

const (
	// KindInternal is an unexpected store or system failure.
	KindInternal Kind = iota
	// KindValidation is a bad enum value or missing required field.
	KindValidation
	// KindAuthentication is an absent, invalid, or expired credential.
	KindAuthentication
	// KindAuthorization is a role or capability mismatch.
	KindAuthorization
	// KindNotFound is an absent task, agent, user, or lease.
	KindNotFound
	// KindConflict is an already-active lease on a claim attempt.
	KindConflict
	// KindUpstream is a language-model backend failure. It is always
	// recovered locally and never mapped to a response.
	KindUpstream
)

// Error is a classified error with a user-facing message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error from a format string.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error with a message.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Validation creates a 400-class error.
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// Authentication creates a 401-class error.
func Authentication(format string, args ...interface{}) *Error {
	return New(KindAuthentication, format, args...)
}

// Authorization creates a 403-class error.
func Authorization(format string, args ...interface{}) *Error {
	return New(KindAuthorization, format, args...)
}

// NotFound creates a 404-class error.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict creates a 409-class error.
func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

// Upstream classifies a language-model backend failure.
func Upstream(err error, format string, args ...interface{}) *Error {
	return Wrap(KindUpstream, err, format, args...)
}

// Internal wraps an unexpected failure.
func Internal(err error, format string, args ...interface{}) *Error {
	return Wrap(KindInternal, err, format, args...)
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to its response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
