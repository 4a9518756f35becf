package errors

import (
	"errors"
	"net/http"
)

// HTTPError represents an error with an associated HTTP status code.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTPError with the given code and message.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

// Helper for common errors
var (
	ErrUnauthorized = func(msg string) *HTTPError { return NewHTTPError(http.StatusUnauthorized, msg) }
	ErrForbidden    = func(msg string) *HTTPError { return NewHTTPError(http.StatusForbidden, msg) }
	ErrBadRequest   = func(msg string) *HTTPError { return NewHTTPError(http.StatusBadRequest, msg) }
)

// FromError maps an engine error to the HTTP status a caller should see.
// Unknown errors become a 500 without leaking their text.
func FromError(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	switch {
	case errors.Is(err, ErrInvalidTimeWindow):
		return NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrReservationNotFound), errors.Is(err, ErrLocationNotFound), errors.Is(err, ErrSpotNotFound):
		return NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSpotUnavailable), errors.Is(err, ErrContended),
		errors.Is(err, ErrAlreadyTerminal), errors.Is(err, ErrInvalidTransition):
		return NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrTooLateToCancel), errors.Is(err, ErrConfirmationExpired):
		return NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrPaymentFailed):
		return NewHTTPError(http.StatusPaymentRequired, err.Error())
	}
	return NewHTTPError(http.StatusInternalServerError, "internal server error")
}
