// Package apperr defines the error taxonomy shared by the messaging core and
// the HTTP layer. Each error carries the status it maps to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUpload       = "UPLOAD_ERROR"
	CodeStore        = "STORE_ERROR"
	CodeTransport    = "TRANSPORT_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeTooLarge     = "PAYLOAD_TOO_LARGE"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Validation reports input the caller must fix; never retried.
func Validation(message string, err error) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest, err)
}

// Upload reports a content store failure while resolving attachments.
func Upload(message string, err error) *AppError {
	return New(CodeUpload, message, http.StatusBadGateway, err)
}

// Store reports a persistence failure.
func Store(message string, err error) *AppError {
	return New(CodeStore, message, http.StatusInternalServerError, err)
}

// Transport reports a fan-out failure. It is logged, never returned to callers.
func Transport(message string, err error) *AppError {
	return New(CodeTransport, message, http.StatusInternalServerError, err)
}

func NotFound(resource string, err error) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, err)
}

func Unauthorized(message string, err error) *AppError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized, err)
}

// TooLarge reports a request body over the accepted size; nothing was stored.
func TooLarge(message string, err error) *AppError {
	return New(CodeTooLarge, message, http.StatusRequestEntityTooLarge, err)
}

// Is reports whether err carries an AppError with the given code.
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the client-facing message for err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error"
}
