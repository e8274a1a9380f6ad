package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotReady is returned by Future.Peek before the Future is completed
var ErrNotReady = errors.New("future not completed")

// ErrorCode represents standardized error codes of the connection layer
type ErrorCode int

const (
	// Connection errors (1000-1099)
	ErrorCodeConnectionRefused ErrorCode = 1001
	ErrorCodeTimeout           ErrorCode = 1002
	ErrorCodeInvalidRequest    ErrorCode = 1003

	// Response errors (2000-2099)
	ErrorCodeReadBody ErrorCode = 2002
)

// TransportError represents an error with structured error code
type TransportError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	IsRetryable bool                   `json:"isRetryable"`
	Cause       error                  `json:"-"`
}

// Error implements the error interface
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("[%d] %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		detailsJSON, _ := json.Marshal(e.Details)
		msg = fmt.Sprintf("%s (details: %s)", msg, string(detailsJSON))
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a new transport error
func NewTransportError(code ErrorCode, message string, details map[string]interface{}, cause error) *TransportError {
	return &TransportError{
		Code:        code,
		Message:     message,
		Details:     details,
		IsRetryable: isRetryable(code),
		Cause:       cause,
	}
}

// isRetryable determines if an error code represents a retryable error
func isRetryable(code ErrorCode) bool {
	switch code {
	case ErrorCodeTimeout, ErrorCodeConnectionRefused:
		return true
	default:
		return false
	}
}

// ConnectionError creates a connection-related transport error
func ConnectionError(message string, cause error) *TransportError {
	return NewTransportError(ErrorCodeConnectionRefused, message, nil, cause)
}

// TimeoutError creates a timeout transport error
func TimeoutError(message string, cause error) *TransportError {
	return NewTransportError(ErrorCodeTimeout, message, nil, cause)
}

// InvalidRequestError creates an error for requests that cannot be sent
func InvalidRequestError(message string, details map[string]interface{}) *TransportError {
	return NewTransportError(ErrorCodeInvalidRequest, message, details, nil)
}

// StatusError is returned when a response status is rejected by the call's predicate.
// The full response stays available to the caller.
type StatusError struct {
	Method   string
	Path     string
	Response *Response
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.Path, e.Response.StatusCode, e.Response.StatusText)
}

// ToJSON serializes the error to JSON
func (e *TransportError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
