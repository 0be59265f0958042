package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNavigation  ErrorType = "navigation"
	ErrorTypeChallenge   ErrorType = "challenge"
	ErrorTypeImagesView  ErrorType = "images_view"
	ErrorTypeInteraction ErrorType = "interaction"
	ErrorTypeExtraction  ErrorType = "extraction"
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeHTTP        ErrorType = "http"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeStorage     ErrorType = "storage"
	ErrorTypeInput       ErrorType = "input"
	ErrorTypeCancelled   ErrorType = "cancelled"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a classified failure. Code carries the HTTP status for
// transport errors and is zero otherwise.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error: %s", e.Type, e.Message)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error.
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates a typed error around a cause.
func Wrap(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// TypeOf returns the type of the first *Error in err's chain.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries an *Error of the given type.
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsFatal reports whether err must abort a crawl session.
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeChallenge, ErrorTypeImagesView, ErrorTypeNavigation:
		return true
	default:
		return false
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 408, 429:
		return true
	case 401, 403, 404, 410:
		return false
	default:
		return statusCode >= 500
	}
}
