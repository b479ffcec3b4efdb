package apperr

import (
	"context"
	"errors"
	"net/http"
)

// Kind is the stable, machine-readable class of a failure.
type Kind string

const (
	KindInvalidRequest     Kind = "invalid_request"
	KindNotFound           Kind = "not_found"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindDuplicateIdentity  Kind = "duplicate_identity"
	KindAlreadyExists      Kind = "already_exists"
	KindInvalidSignature   Kind = "invalid_signature"
	KindPaymentNotCaptured Kind = "payment_not_captured"
	KindDuplicatePayment   Kind = "duplicate_payment"
	KindUnavailable        Kind = "unavailable"
	KindUnauthorized       Kind = "unauthorized"
)

// Sentinels usable with errors.Is; matching is by kind, so any *Error of the
// same kind satisfies errors.Is(err, ErrNotFound) regardless of its message.
var (
	ErrInvalidRequest     = New(KindInvalidRequest, "invalid request")
	ErrNotFound           = New(KindNotFound, "not found")
	ErrInsufficientFunds  = New(KindInsufficientFunds, "insufficient funds")
	ErrDuplicateIdentity  = New(KindDuplicateIdentity, "duplicate identity")
	ErrAlreadyExists      = New(KindAlreadyExists, "already exists")
	ErrInvalidSignature   = New(KindInvalidSignature, "invalid payment signature")
	ErrPaymentNotCaptured = New(KindPaymentNotCaptured, "payment not captured")
	ErrDuplicatePayment   = New(KindDuplicatePayment, "duplicate payment")
	ErrUnavailable        = New(KindUnavailable, "service unavailable")
	ErrUnauthorized       = New(KindUnauthorized, "unauthorized")
)

// Error is the domain error carried across the ledger core.
type Error struct {
	Kind    Kind
	Message string // human-readable detail, safe to show callers
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Kind == KindUnavailable {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a domain error with a kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Invalid is shorthand for an InvalidRequest error.
func Invalid(message string) *Error {
	return New(KindInvalidRequest, message)
}

// NotFound is shorthand for a NotFound error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Unavailable wraps an infrastructure failure. Errors that are already
// classified pass through untouched so callers never lose the original kind.
func Unavailable(message string, cause error) error {
	if cause == nil {
		return New(KindUnavailable, message)
	}
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	return Wrap(KindUnavailable, message, cause)
}

// KindOf classifies any error. Unclassified errors, context cancellation
// included, are reported as unavailable.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// FromContext converts a cancelled or expired context into an unavailable
// error, or returns nil while ctx is still live.
func FromContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Wrap(KindUnavailable, "request cancelled", err)
	}
	return nil
}

// Message returns the caller-facing detail for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps a kind onto the HTTP status used by the API surface.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidRequest, KindInvalidSignature:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateIdentity, KindAlreadyExists, KindDuplicatePayment:
		return http.StatusConflict
	case KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case KindPaymentNotCaptured:
		return http.StatusPaymentRequired
	default:
		return http.StatusServiceUnavailable
	}
}
