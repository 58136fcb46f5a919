package iam

import (
	"errors"
	"net/http"
)

// Kind classifies an Error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Status maps the kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is returned by every Service operation. Message is safe to show to
// clients; Err holds the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Status is shorthand for e.Kind.Status().
func (e *Error) Status() int { return e.Kind.Status() }

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func internal(err error) *Error {
	return newError(KindInternal, "internal server error", err)
}

// AsError converts any error into an *Error. Errors that are not already
// classified become KindInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internal(err)
}

// Client-visible messages.
const (
	msgUnauthorized     = "unauthorized"
	msgInvalidHeader    = "invalid auth header"
	msgUserNotFound     = "user not found"
	msgInvalidPassword  = "invalid password"
	msgForbidden        = "forbidden"
	msgInvalidState     = "invalid state"
	msgIncompleteID     = "identity provider returned an incomplete identity"
	msgFederatedOff     = "federated login is not configured"
	msgNotAllowed       = "account is not allowed to sign in"
	msgMissingParameter = "missing code or state"
)

// Unauthenticated is the error for a request that carries no principal.
func Unauthenticated() *Error {
	return newError(KindUnauthorized, msgUnauthorized, nil)
}
