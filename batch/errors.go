package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/dan-strohschein/adt-batch/transport"
)

// Error codes of structural and lifecycle failures.
const (
	CodeProtocolMisuse     = "E_PROTOCOL_MISUSE"
	CodeFlushInProgress    = "E_FLUSH_IN_PROGRESS"
	CodePartCountMismatch  = "E_PART_COUNT_MISMATCH"
	CodeBatchDiscarded     = "E_BATCH_DISCARDED"
	CodeBatchTooLarge      = "E_BATCH_TOO_LARGE"
	CodeMalformedResponse  = "E_MALFORMED_RESPONSE"
	CodeTransportFailure   = "E_BATCH_TRANSPORT"
	errorTypeBatch         = "BATCH_ERROR"
	errorTypeBatchStateErr = "BATCH_STATE_ERROR"
)

// Sentinels for errors.Is. Any BatchError with the same Code matches.
var (
	ErrProtocolMisuse    = &BatchError{Code: CodeProtocolMisuse}
	ErrFlushInProgress   = &BatchError{Code: CodeFlushInProgress}
	ErrPartCountMismatch = &BatchError{Code: CodePartCountMismatch}
	ErrBatchDiscarded    = &BatchError{Code: CodeBatchDiscarded}
	ErrBatchTooLarge     = &BatchError{Code: CodeBatchTooLarge}
	ErrMalformedResponse = &BatchError{Code: CodeMalformedResponse}
	ErrTransportFailure  = &BatchError{Code: CodeTransportFailure}
)

// BatchError represents a failure of the batch as a whole, or a misuse of
// its lifecycle.
type BatchError struct {
	Code       string                 `json:"code"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace []string               `json:"stack_trace,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *BatchError) FormatError(debugMode bool) string {
	if !debugMode {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
		}
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
	}

	if len(e.Details) > 0 {
		errorData["details"] = e.Details
	}

	if e.Cause != nil {
		errorData["cause"] = map[string]interface{}{"message": e.Cause.Error()}
	}

	if len(e.StackTrace) > 0 {
		errorData["stack_trace"] = e.StackTrace
	}

	if !e.Timestamp.IsZero() {
		errorData["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// Unwrap returns the underlying cause error.
func (e *BatchError) Unwrap() error {
	return e.Cause
}

// Is matches any BatchError carrying the same code.
func (e *BatchError) Is(target error) bool {
	t, ok := target.(*BatchError)
	return ok && t.Code == e.Code
}

func newBatchError(code, typ, message string, details map[string]interface{}, cause error) *BatchError {
	return &BatchError{
		Code:       code,
		Type:       typ,
		Message:    message,
		Details:    details,
		Cause:      cause,
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
}

// errProtocolMisuse reports an operation on a batch that was already flushed.
func errProtocolMisuse(operation string) *BatchError {
	return newBatchError(CodeProtocolMisuse, errorTypeBatchStateErr,
		fmt.Sprintf("%s on a flushed batch; call Reset to start a new batch", operation),
		map[string]interface{}{"operation": operation, "currentState": FLUSHED.String()}, nil)
}

// errFlushInProgress reports an operation attempted while a flush is outstanding.
func errFlushInProgress(operation string) *BatchError {
	return newBatchError(CodeFlushInProgress, errorTypeBatchStateErr,
		fmt.Sprintf("%s while a flush is in progress", operation),
		map[string]interface{}{"operation": operation, "currentState": FLUSHING.String()}, nil)
}

// errPartCountMismatch reports a response whose parts cannot be paired with the calls.
func errPartCountMismatch(expected, actual int) *BatchError {
	return newBatchError(CodePartCountMismatch, errorTypeBatch,
		fmt.Sprintf("response has %d parts for %d captured calls", actual, expected),
		map[string]interface{}{"expected": expected, "actual": actual}, nil)
}

// errBatchDiscarded is given to every pending call when the batch is reset.
func errBatchDiscarded(pending int) *BatchError {
	return newBatchError(CodeBatchDiscarded, errorTypeBatch,
		"batch was discarded before it was flushed",
		map[string]interface{}{"pending": pending}, nil)
}

// errBatchTooLarge reports a batch exceeding a configured bound.
func errBatchTooLarge(what string, limit, actual int) *BatchError {
	return newBatchError(CodeBatchTooLarge, errorTypeBatch,
		fmt.Sprintf("batch %s %d exceeds limit %d", what, actual, limit),
		map[string]interface{}{"limit": limit, "actual": actual, "bound": what}, nil)
}

// errMalformedResponse reports a combined response that could not be decoded.
func errMalformedResponse(cause error) *BatchError {
	return newBatchError(CodeMalformedResponse, errorTypeBatch,
		"batch response could not be decoded", nil, cause)
}

// errTransportFailure reports a failure of the single real exchange.
func errTransportFailure(cause error) *BatchError {
	details := map[string]interface{}{}
	var serr *transport.StatusError
	if errors.As(cause, &serr) {
		details["status"] = serr.Response.StatusCode
	}
	var terr *transport.TransportError
	if errors.As(cause, &terr) {
		details["transportCode"] = int(terr.Code)
		details["retryable"] = terr.IsRetryable
	}
	return newBatchError(CodeTransportFailure, errorTypeBatch,
		"batch exchange failed", details, cause)
}

// CallError rejects a single call whose response status was not accepted.
// It wraps the Result Record; siblings in the same batch are unaffected.
type CallError struct {
	Position int
	Method   string
	Path     string
	Response *transport.Response
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("batch call %d (%s %s) failed with status %d %s",
		e.Position, e.Method, e.Path, e.Response.StatusCode, e.Response.StatusText)
}

// Unwrap exposes the failure as a transport.StatusError, so call sites written
// against a direct connection recognize it unchanged.
func (e *CallError) Unwrap() error {
	return &transport.StatusError{Method: e.Method, Path: e.Path, Response: e.Response}
}

// captureStackTrace captures the current stack trace for error reporting.
func captureStackTrace() []string {
	const maxDepth = 32
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(3, pcs) // Skip captureStackTrace, newBatchError, and runtime.Callers

	frames := make([]string, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := callersFrames.Next()
		frames = append(frames, fmt.Sprintf("%s (%s:%d)", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}

	return frames
}

// FormatError is a helper to format any error with debug mode support.
func FormatError(err error, debugMode bool) string {
	if err == nil {
		return ""
	}

	type debugFormatter interface {
		FormatError(bool) string
	}

	var formatter debugFormatter
	if errors.As(err, &formatter) {
		return formatter.FormatError(debugMode)
	}

	return err.Error()
}
