package apperrors

import (
	"errors"
	"net/http"
)

// Error kinds. Every error that crosses a handler boundary should wrap one of these.
var (
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("conflict")
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("not authorized")
	ErrNotFound       = errors.New("not found")
	ErrWrongState     = errors.New("wrong state")
	ErrThrottled      = errors.New("too many requests")
	ErrUnavailable    = errors.New("service unavailable")
	ErrMisconfigured  = errors.New("server misconfigured")
)

// Error pairs a kind with a message that is safe to show to clients.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error { return e.Kind }

func New(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Validation(message string) error { return New(ErrValidation, message) }
func NotFound(message string) error   { return New(ErrNotFound, message) }
func WrongState(message string) error { return New(ErrWrongState, message) }

// Message returns the client-facing message of err, or fallback when err
// does not carry one.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

// HTTPStatus maps err to the response status for its kind. Unknown errors are 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrWrongState):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthentication),
		errors.Is(err, ErrAuthorization):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Classified reports whether err belongs to a known kind other than the
// server-side ones (unavailable, misconfigured).
func Classified(err error) bool {
	return HTTPStatus(err) < http.StatusInternalServerError
}
