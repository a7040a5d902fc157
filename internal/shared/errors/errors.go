package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrConflict       = errors.New("resource conflict")
	ErrInternal       = errors.New("internal error")
	ErrUnavailable    = errors.New("service unavailable")
	ErrUpstreamFailed = errors.New("upstream failed")
)

// AppError represents an application error with HTTP status and error code.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrorResponse represents the JSON error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToResponse converts an AppError to ErrorResponse.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Code: e.Code, Message: e.Message}
}

// NewAppError creates a new application error.
func NewAppError(code string, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NotFound creates a not found error with a code such as "account_not_found".
func NotFound(code, message string) *AppError {
	return NewAppError(code, message, http.StatusNotFound, ErrNotFound)
}

// BadRequest creates a bad request error.
func BadRequest(code, message string) *AppError {
	return NewAppError(code, message, http.StatusBadRequest, ErrBadRequest)
}

// Unauthorized creates an error for a missing or invalid credential.
func Unauthorized(code, message string) *AppError {
	return NewAppError(code, message, http.StatusUnauthorized, ErrUnauthorized)
}

// Forbidden creates an error for a valid credential without access.
func Forbidden(code, message string) *AppError {
	return NewAppError(code, message, http.StatusForbidden, ErrForbidden)
}

// Conflict creates a conflict error.
func Conflict(code, message string) *AppError {
	return NewAppError(code, message, http.StatusConflict, ErrConflict)
}

// Unavailable creates a retryable error. Clients may repeat the request.
func Unavailable(code, message string, err error) *AppError {
	return NewAppError(code, message, http.StatusServiceUnavailable, errors.Join(ErrUnavailable, err))
}

// BadGateway creates an error for a failed upstream call.
func BadGateway(code, message string, err error) *AppError {
	return NewAppError(code, message, http.StatusBadGateway, errors.Join(ErrUpstreamFailed, err))
}

// Internal creates an internal error.
func Internal(message string, err error) *AppError {
	if message == "" {
		message = "Internal server error"
	}
	return NewAppError("internal_error", message, http.StatusInternalServerError, err)
}

// GetStatusCode returns the appropriate HTTP status code for an error.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUpstreamFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether err is worth repeating unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
