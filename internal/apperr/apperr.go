package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error category. Handlers map codes to
// HTTP statuses; clients branch on them. Internal detail (SQL errors, stack
// traces) never travels inside an Error.
type Code string

const (
	NotFound         Code = "NOT_FOUND"
	InvalidState     Code = "INVALID_STATE"
	PhaseClosed      Code = "PHASE_CLOSED"
	Unauthorized     Code = "UNAUTHORIZED"
	ValidationFailed Code = "VALIDATION_FAILED"
	Internal         Code = "INTERNAL"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Is lets errors.Is match on the code alone.
func (e *Error) Is(target error) bool {
	var ae *Error
	if errors.As(target, &ae) {
		return e.Code == ae.Code
	}
	return false
}

// CodeOf extracts the code from any error, defaulting to Internal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return Internal
}

// HTTPStatus maps an error to the status the API surface should return.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case NotFound:
		return http.StatusNotFound
	case InvalidState, PhaseClosed:
		return http.StatusConflict
	case Unauthorized:
		return http.StatusForbidden
	case ValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the error shape safe to serialize past the core boundary.
// Unknown errors collapse to a generic message.
func Public(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Code: Internal, Message: "something went wrong"}
}
