package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies an error so transport layers can map it to a status code
// or a websocket error acknowledgement.
type Kind int

const (
	// KindUnknown covers everything the service layer did not classify.
	KindUnknown Kind = iota
	// KindValidation marks malformed or missing input.
	KindValidation
	// KindAuthorization marks an actor acting outside its role or membership.
	KindAuthorization
	// KindNotFound marks a missing conversation, chat or user.
	KindNotFound
	// KindConflict marks an invalid state transition or duplicate aggregate.
	KindConflict
)

// Error is the classified error returned by services and repositories.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a validation error.
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Authorization builds an authorization error.
func Authorization(format string, args ...interface{}) error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error.
func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error without losing its chain.
func Wrap(kind Kind, err error, message string) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the classification from an error chain.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the fallback-path status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindAuthorization:
		return fiber.StatusForbidden
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// Code maps an error to the realtime-path error acknowledgement code.
func Code(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "validation_error"
	case KindAuthorization:
		return "authorization_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Message returns the client-safe message for an error. Unclassified errors
// never leak their text to clients.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
