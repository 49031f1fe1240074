// Package apperr defines the structured error type returned by taskhub
// services. Every failure that reaches the HTTP boundary is an *Error with a
// Kind (which selects the status code) and a stable machine-readable Code.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the coarse category of a failure.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindRateLimited     Kind = "rate_limited"
	KindNotFound        Kind = "not_found"
	KindExpired         Kind = "expired"
	KindTooManyAttempts Kind = "too_many_attempts"
	KindInvalidCode     Kind = "invalid_code"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

// Error is a structured domain failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Field names the conflicting or invalid input, if any.
	Field string
	// RetryAfter is set for rate-limited failures.
	RetryAfter time.Duration
	// Remaining is the number of verification attempts left, or -1.
	Remaining int
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same Code, so package-level
// sentinels can be matched with errors.Is after being copied or annotated.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithRetryAfter returns a copy of e carrying the given retry-after hint.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	c := *e
	c.RetryAfter = d
	return &c
}

// WithRemaining returns a copy of e carrying the remaining attempt count.
func (e *Error) WithRemaining(n int) *Error {
	c := *e
	c.Remaining = n
	return &c
}

// WithMessage returns a copy of e with a different message.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

// New builds an *Error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Remaining: -1}
}

func Validation(code, field, message string) *Error {
	e := New(KindValidation, code, message)
	e.Field = field
	return e
}

func Conflict(code, field, message string) *Error {
	e := New(KindConflict, code, message)
	e.Field = field
	return e
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Forbidden(code, message string) *Error {
	return New(KindForbidden, code, message)
}

func Unauthorized(code, message string) *Error {
	return New(KindUnauthorized, code, message)
}

// ErrForbidden is the generic role/membership failure.
var ErrForbidden = Forbidden("forbidden", "you do not have permission to perform this action")

// As extracts an *Error from err. Errors that are not *Error are reported as
// internal failures with ok false.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return New(KindInternal, "internal_error", "internal server error"), false
}
