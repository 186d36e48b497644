// Package apierr defines the error taxonomy shared by the HTTP surface and
// the WebSocket unicast error frame, so every failure in the server maps to
// exactly one of a small set of kinds regardless of where it is raised.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the purposes of transport mapping. It mirrors
// the taxonomy the word-game server uses throughout its request handling:
// every handler error is one of these five kinds, never a bare string.
type Kind int

const (
	// Unauthenticated means no valid principal could be established.
	Unauthenticated Kind = iota
	// Forbidden means the principal is known but not allowed to perform
	// the requested operation (wrong room, not admin, not explainer, ...).
	Forbidden
	// NotFound means the referenced room, player, or resource does not exist.
	NotFound
	// BadRequest means the request was malformed or violated a game
	// invariant (team already full, room not in expected state, ...).
	BadRequest
	// Transient means a downstream dependency (database, identity
	// provider) failed in a way that may succeed if retried.
	Transient
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case BadRequest:
		return "bad_request"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carried through the server. Handlers
// should construct one with the New* helpers and return it as a normal Go
// error; the HTTP and WebSocket layers type-assert it to pick a status code
// or error frame.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps the error's Kind to the status code the HTTP surface
// should respond with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case BadRequest:
		return http.StatusBadRequest
	case Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Frame renders the error as the payload for a unicast WebSocket "error"
// frame: just the message, since the client doesn't need the Kind to react.
func (e *Error) Frame() map[string]string {
	return map[string]string{"message": e.Message}
}

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, cause: cause}
}

// NewUnauthenticated builds an Unauthenticated error.
func NewUnauthenticated(msg string) *Error { return newErr(Unauthenticated, msg, nil) }

// NewForbidden builds a Forbidden error.
func NewForbidden(msg string) *Error { return newErr(Forbidden, msg, nil) }

// NewNotFound builds a NotFound error.
func NewNotFound(msg string) *Error { return newErr(NotFound, msg, nil) }

// NewBadRequest builds a BadRequest error.
func NewBadRequest(msg string) *Error { return newErr(BadRequest, msg, nil) }

// NewTransient builds a Transient error wrapping the downstream cause.
func NewTransient(msg string, cause error) *Error { return newErr(Transient, msg, cause) }

// As extracts an *Error from err via errors.As, for callers that need to
// branch on Kind without knowing whether err is already typed.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Of classifies any error into an *Error, defaulting unrecognized errors to
// Transient so an unexpected failure never leaks as a 500 with no taxonomy.
func Of(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return newErr(Transient, "internal error", err)
}
