package pipeline

import (
	"errors"
	"fmt"
)

// ErrorType names the stage that failed
type ErrorType string

const (
	ErrorTypeInput     ErrorType = "input"
	ErrorTypeDetection ErrorType = "detection"
	ErrorTypeAnalysis  ErrorType = "analysis"
	ErrorTypeRender    ErrorType = "render"
	ErrorTypeWrite     ErrorType = "write"
)

// Error is a failure of one pipeline stage
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewInputError creates an error for an input that could not be resolved or read
func NewInputError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeInput, Message: message, Cause: cause}
}

// NewAnalysisError creates an error for a rejected image or option set
func NewAnalysisError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeAnalysis, Message: message, Cause: cause}
}

// NewRenderError creates an error for a failed crop, resize or encode
func NewRenderError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeRender, Message: message, Cause: cause}
}

// NewWriteError creates an error for output that could not be written
func NewWriteError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeWrite, Message: message, Cause: cause}
}

// IsType checks if err, or an error it wraps, is a pipeline error of the given type
func IsType(err error, errorType ErrorType) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Type == errorType
	}
	return false
}
