// Package apperr defines the stable error taxonomy shared across the
// pipeline: every boundary and every phase executor returns one of these
// codes so the task runner and HTTP ingress can make uniform retry/response
// decisions without string-matching error text.
package apperr

import "fmt"

// Code is a stable, serialization-safe error classification.
type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConfig          Code = "CONFIG_ERROR"
	CodeStorage         Code = "STORAGE_ERROR"
	CodeLLMRetryable    Code = "LLM_RETRYABLE"
	CodeLLMNonRetryable Code = "LLM_NON_RETRYABLE"
	CodeInternal        Code = "INTERNAL_ERROR"
)

func (c Code) String() string { return string(c) }

// Error is the single structured error type returned across phase
// boundaries. It carries a stable Code, a human-readable Reason, and
// optional Details for audit rows and HTTP responses.
type Error struct {
	Code    Code
	Reason  string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

func new(code Code, reason string, cause error, details map[string]any) *Error {
	return &Error{Code: code, Reason: reason, cause: cause, Details: details}
}

func NewValidation(reason string, details map[string]any) *Error {
	return new(CodeValidation, reason, nil, details)
}

func NewNotFound(reason string) *Error {
	return new(CodeNotFound, reason, nil, nil)
}

func NewConfig(reason string, cause error) *Error {
	return new(CodeConfig, reason, cause, nil)
}

func NewStorage(reason string, cause error) *Error {
	return new(CodeStorage, reason, cause, nil)
}

func NewLLMRetryable(reason string, cause error) *Error {
	return new(CodeLLMRetryable, reason, cause, nil)
}

func NewLLMNonRetryable(reason string, cause error) *Error {
	return new(CodeLLMNonRetryable, reason, cause, nil)
}

func NewInternal(reason string, cause error) *Error {
	return new(CodeInternal, reason, cause, nil)
}

// As extracts an *Error from err, mirroring errors.As ergonomics.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
