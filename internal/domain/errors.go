package domain

import (
	"errors"
)

// ErrorKind classifies a domain error. The transport layer maps kinds to
// status codes; nothing else should inspect error messages.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindConflict     ErrorKind = "conflict"
	KindAuth         ErrorKind = "auth"
	KindForbidden    ErrorKind = "forbidden"
	KindExpired      ErrorKind = "expired"
	KindInvalidToken ErrorKind = "invalid_token"
	KindMissingToken ErrorKind = "missing_token"
	KindNotFound     ErrorKind = "not_found"
	KindInternal     ErrorKind = "internal"
)

// Error is the closed set of failures produced by the services.
// Message is safe to show to clients.
type Error struct {
	Kind    ErrorKind
	Message string
}

// NewError creates a domain error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}

	return e.Message
}

// Is reports whether target is the bare sentinel for e's kind, so that
// errors.Is(err, ErrValidation) matches every validation error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Message == "" && t.Kind == e.Kind
}

// Kind sentinels. Compare with errors.Is.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrAuth         = &Error{Kind: KindAuth}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrExpired      = &Error{Kind: KindExpired}
	ErrInvalidToken = &Error{Kind: KindInvalidToken}
	ErrMissingToken = &Error{Kind: KindMissingToken}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInternal     = &Error{Kind: KindInternal}
)

// KindOf returns the kind of the first domain error in err's tree,
// or KindInternal if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

// MessageOf returns the client-facing message of the first domain error in
// err's tree. Errors outside the taxonomy yield a generic message.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Error()
	}

	return "internal server error"
}
