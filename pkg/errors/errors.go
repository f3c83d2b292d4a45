// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Weft.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Weft errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeParse indicates a malformed tag or attribute in the stream.
	CodeParse ErrorCode = "PARSE_ERROR"

	// CodePayload indicates an action payload that stayed unparseable
	// after cleanup.
	CodePayload ErrorCode = "PAYLOAD_ERROR"

	// CodeDeadlock indicates a cyclic or permanently-unsatisfiable
	// depends_on set, detected at end of stream.
	CodeDeadlock ErrorCode = "DEPENDENCY_DEADLOCK"

	// CodeExecution indicates the external execution callback failed.
	CodeExecution ErrorCode = "EXECUTION_ERROR"

	// CodeUnknownInternal indicates an unrecognized internal action name.
	CodeUnknownInternal ErrorCode = "UNKNOWN_INTERNAL_ACTION"

	// CodeFallbackPlainText marks a stream that carried no recognized tag
	// and was recovered as a plain-text answer.
	CodeFallbackPlainText ErrorCode = "FALLBACK_PLAIN_TEXT"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeLLM indicates a model provider error.
	CodeLLM ErrorCode = "LLM_ERROR"
)

// WeftError is a typed error with structured context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type WeftError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]any
	Recoverable bool
}

// Error implements the error interface.
func (e *WeftError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *WeftError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *WeftError) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"code":        string(e.Code),
		"message":     e.Error(),
		"recoverable": e.Recoverable,
	}
	if e.Err != nil {
		out["error"] = e.Err.Error()
	}
	if len(e.Context) > 0 {
		out["context"] = e.Context
	}
	return json.Marshal(out)
}

// New creates a new WeftError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *WeftError {
	return &WeftError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]any),
	}
}

// Newf creates a WeftError with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...any) *WeftError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *WeftError) WithContext(key string, value any) *WeftError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *WeftError) WithRecoverable(recoverable bool) *WeftError {
	e.Recoverable = recoverable
	return e
}

// AsWeftError attempts to convert an error to a WeftError.
// Returns the error as WeftError if it is one, or wraps it otherwise.
func AsWeftError(err error) *WeftError {
	if err == nil {
		return nil
	}
	if we, ok := err.(*WeftError); ok {
		return we
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the error code, or CodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if we, ok := err.(*WeftError); ok {
		return we.Code
	}
	return CodeInternal
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *WeftError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}
