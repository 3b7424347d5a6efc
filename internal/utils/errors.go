package utils

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeBackendRejection     = "BACKEND_REJECTION"
	ErrCodeDataIntegrityWarning = "DATA_INTEGRITY_WARNING"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// HTTPStatus maps error codes to HTTP status codes
var HTTPStatus = map[string]int{
	ErrCodeValidation:           http.StatusUnprocessableEntity,
	ErrCodeBackendRejection:     http.StatusBadGateway,
	ErrCodeDataIntegrityWarning: http.StatusOK,
	ErrCodeNotFound:             http.StatusNotFound,
	ErrCodeConflict:             http.StatusConflict,
	ErrCodeInternal:             http.StatusInternalServerError,
}

// AppError represents an application error with additional context
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError is raised locally, before any backend call is made.
func NewValidationError(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewBackendRejection keeps the backend's message verbatim so it can be shown to the user as is.
func NewBackendRejection(message string, cause error) *AppError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &AppError{Code: ErrCodeBackendRejection, Message: message, Cause: cause}
}

func NewIntegrityWarning(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeDataIntegrityWarning, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(resource, id string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found", resource), Details: id}
}

func NewConflictError(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...)}
}

// IsErrorType checks if an error (or anything it wraps) carries the given code
func IsErrorType(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if status, exists := HTTPStatus[appErr.Code]; exists {
			return status
		}
	}
	return http.StatusInternalServerError
}

// UserMessage is the text shown to the user for an error: the AppError message when available.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
