// Package errors defines the sentinel error kinds raised by the moment
// search service and their mapping to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidTerm       = errors.New("invalid search term")
	ErrInvalidHashtags   = errors.New("invalid hashtags")
	ErrInvalidLocation   = errors.New("invalid location")
	ErrLimitExceeded     = errors.New("pagination limit exceeded")
	ErrAllSearchesFailed = errors.New("all search strategies failed")
	ErrIndexUnavailable  = errors.New("retrieval index unavailable")
	ErrMomentNotFound    = errors.New("moment not found")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrTimeout           = errors.New("operation timed out")
	ErrInternal          = errors.New("internal error")
)

// AppError wraps a sentinel error with a human-readable message and the HTTP
// status code transports should return for it.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError from a sentinel.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Newf creates an AppError with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status code it should surface as.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidTerm),
		errors.Is(err, ErrInvalidHashtags),
		errors.Is(err, ErrInvalidLocation),
		errors.Is(err, ErrLimitExceeded):
		return http.StatusBadRequest
	case errors.Is(err, ErrMomentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrAllSearchesFailed),
		errors.Is(err, ErrIndexUnavailable),
		errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
