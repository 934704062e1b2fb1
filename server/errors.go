package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Desarso/chatrelay/models"
	"github.com/Desarso/chatrelay/sessions"
	"github.com/Desarso/chatrelay/stores"
)

// Error codes used in the JSON error envelope.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodeDatabase    = "DATABASE_ERROR"
	CodeModelAPI    = "MODEL_API_ERROR"
	CodeInternal    = "INTERNAL_SERVER_ERROR"
	CodeRateLimited = "RATE_LIMITED"
)

// AppError is an error with an HTTP status, rendered as
// {"error":{"code","message","details"}} by ErrorHandler.
type AppError struct {
	Status  int
	Code    string
	Message string
	Details interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewValidationError(message string, details interface{}) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: CodeValidation, Message: message, Details: details}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// storeError maps a store failure, keeping not-found distinct.
func storeError(err error, message string) *AppError {
	if errors.Is(err, stores.ErrNotFound) {
		return &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: "Conversation not found", Err: err}
	}
	return &AppError{Status: http.StatusInternalServerError, Code: CodeDatabase, Message: message, Err: err}
}

// toAppError classifies any error returned by a handler.
func toAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, stores.ErrNotFound):
		return storeError(err, "")
	case errors.Is(err, models.ErrRateLimit):
		return &AppError{Status: http.StatusTooManyRequests, Code: CodeRateLimited, Message: sessions.StreamErrorMessage(err), Err: err}
	case errors.Is(err, models.ErrAuthInvalid),
		errors.Is(err, models.ErrInsufficientBalance),
		errors.Is(err, models.ErrUpstreamUnavailable):
		return &AppError{Status: http.StatusServiceUnavailable, Code: CodeModelAPI, Message: sessions.StreamErrorMessage(err), Err: err}
	}

	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		return &AppError{Status: http.StatusServiceUnavailable, Code: CodeModelAPI, Message: "Model API request failed", Details: apiErr.Message, Err: err}
	}

	return &AppError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "An unexpected error occurred", Err: err}
}
