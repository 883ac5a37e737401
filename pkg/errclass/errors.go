// Package errclass defines the stable, machine-readable error classes used
// across the session controller, the round-flow backend and its clients.
package errclass

import (
	"errors"
	"fmt"
	"net/http"
)

// ProctorError is a stable, machine-readable error class.
type ProctorError struct {
	Code    string
	Message string
}

func (e *ProctorError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProctorError) Is(target error) bool {
	t, ok := target.(*ProctorError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new ProctorError with the same Code but a specific message.
func (e *ProctorError) WithMessage(msg string) *ProctorError {
	return &ProctorError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new ProctorError with a formatted message.
func (e *ProctorError) WithMessagef(format string, args ...any) *ProctorError {
	return &ProctorError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	// Controller taxonomy.
	ErrStatusUnavailable  = &ProctorError{Code: "E_STATUS_UNAVAILABLE"}
	ErrResetFailed        = &ProctorError{Code: "E_RESET_FAILED"}
	ErrDetectorCallFailed = &ProctorError{Code: "E_DETECTOR_CALL_FAILED"}
	ErrDeviceUnavailable  = &ProctorError{Code: "E_DEVICE_UNAVAILABLE"}
	ErrFullscreenDenied   = &ProctorError{Code: "E_FULLSCREEN_DENIED"}

	// Round-flow gating.
	ErrRoundInvalid    = &ProctorError{Code: "E_ROUND_INVALID"}
	ErrRoundLocked     = &ProctorError{Code: "E_ROUND_LOCKED"}
	ErrRoundCompleted  = &ProctorError{Code: "E_ROUND_COMPLETED"}
	ErrRoundNotStarted = &ProctorError{Code: "E_ROUND_NOT_STARTED"}
	ErrUnauthenticated = &ProctorError{Code: "E_UNAUTHENTICATED"}
)

// Code extracts the error class code from err, or "" if err carries none.
func Code(err error) string {
	var pe *ProctorError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// HTTPStatus maps an error class to the status code the round-flow backend
// answers with. Unclassified errors are internal errors.
func HTTPStatus(err error) int {
	switch Code(err) {
	case ErrRoundInvalid.Code, ErrRoundCompleted.Code:
		return http.StatusBadRequest
	case ErrRoundLocked.Code, ErrRoundNotStarted.Code:
		return http.StatusForbidden
	case ErrUnauthenticated.Code:
		return http.StatusUnauthorized
	case ErrStatusUnavailable.Code, ErrDetectorCallFailed.Code:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromCode rebuilds a ProctorError from a code received over the wire.
// Unknown codes are kept as-is so callers can still compare them.
func FromCode(code, msg string) *ProctorError {
	return &ProctorError{Code: code, Message: msg}
}
