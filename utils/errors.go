package utils

import (
	"errors"
	"strings"
)

// AppError is an error surfaced to the viewer at an action boundary
type AppError struct {
	Code    string
	Message string
	Origin  error // original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// error codes for the action boundary
const (
	ErrLoginRequired = "LOGIN_REQUIRED"
	ErrInvalidInput  = "INVALID_INPUT"
	ErrNotFound      = "NOT_FOUND"
	ErrInFlight      = "IN_FLIGHT"
	ErrBackend       = "BACKEND_ERROR"
)

// NewAppError creates an AppError
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

// NewLoginRequiredError is returned when an action is attempted while logged out
func NewLoginRequiredError(action string) *AppError {
	return &AppError{
		Code:    ErrLoginRequired,
		Message: "You must be logged in to " + action,
	}
}

// NewValidationError is returned for input rejected before any request is sent
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    ErrInvalidInput,
		Message: message,
	}
}

// NewNotFoundError is returned when a single entity does not resolve
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: message,
	}
}

// NewInFlightError is returned when the same action is already pending
func NewInFlightError(message string) *AppError {
	return &AppError{
		Code:    ErrInFlight,
		Message: message,
	}
}

// backendMessenger is implemented by errors that carry the backend's own message
type backendMessenger interface {
	BackendMessage() string
}

// NewBackendError wraps a failed write. The viewer sees the backend's message
// when it sent one, the fallback otherwise.
func NewBackendError(fallback string, err error) *AppError {
	message := fallback
	var bm backendMessenger
	if errors.As(err, &bm) {
		if m := strings.TrimSpace(bm.BackendMessage()); m != "" {
			message = m
		}
	}
	return &AppError{
		Code:    ErrBackend,
		Message: message,
		Origin:  err,
	}
}

// ErrorCode returns the AppError code of err, or "" when err is not an AppError
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// UserMessage returns the message to show the viewer for err
func UserMessage(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}
