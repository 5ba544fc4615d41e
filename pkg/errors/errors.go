package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so wrapped copies still compare equal.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithInternal returns a copy with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy with a different public message.
func (e *AppError) WithMessage(msg string) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Message = msg
	return &cpy
}

var (
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrValidation = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrUpstream is returned when the AI provider fails or answers garbage.
	ErrUpstream = &AppError{
		Code:       "UPSTREAM_FAILED",
		Message:    "Wine recommendation service unavailable",
		StatusCode: http.StatusBadGateway,
	}

	ErrNoWines = &AppError{
		Code:       "NO_WINES",
		Message:    "No wines found for this session; scan a wine list first",
		StatusCode: http.StatusBadRequest,
	}

	ErrNoDishes = &AppError{
		Code:       "NO_DISHES",
		Message:    "Select at least one dish",
		StatusCode: http.StatusBadRequest,
	}

	ErrNotConfigured = &AppError{
		Code:       "NOT_CONFIGURED",
		Message:    "AI provider is not configured",
		StatusCode: http.StatusServiceUnavailable,
	}
)

// Wrap turns any error into a 500 with a client-facing message while keeping
// the cause for logging.
func Wrap(err error, message string) *AppError {
	return ErrInternalServer.WithMessage(message).WithInternal(err)
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest builds a 400 with a specific message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}
