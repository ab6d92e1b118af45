// Package apperr holds the error kinds every user-facing failure is reported with.
// A Kind is stable and machine readable; the Reason is safe to show to the user.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	NotFound        Kind = "not_found"
	PolicyViolation Kind = "policy_violation"
	InvalidInput    Kind = "invalid_input"
	Unauthorized    Kind = "unauthorized"
	Internal        Kind = "internal"
)

type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap keeps err for logs while the caller only ever sees reason.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Reason + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of err. Anything that is not an *Error is Internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// ReasonOf returns the user-facing reason of err, never the wrapped cause.
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Reason != "" {
		return appErr.Reason
	}
	return "Internal server error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case PolicyViolation:
		return http.StatusUnprocessableEntity
	case InvalidInput:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
