// Package apperr is the shared error taxonomy: every component that
// surfaces a caller-visible failure returns one of these Codes, wrapped
// with Unwrap-able context, so HTTP/SSE handlers can map errors to
// status codes in one place instead of re-deriving intent from error
// strings. Modeled on internal/agent/errors.go's Type+Error struct
// idiom.
package apperr

import (
	"errors"
	"fmt"
)

// Code categorizes an error for status-code mapping and retry logic.
type Code string

const (
	CodeValidation         Code = "validation"
	CodeTenantNotFound     Code = "tenant_not_found"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeStorageUnavailable Code = "storage_unavailable"
	CodeCacheUnavailable   Code = "cache_unavailable"
	CodeBusUnavailable     Code = "bus_unavailable"
	CodeLLMUnavailable     Code = "llm_unavailable"
	CodeInternal           Code = "internal"
)

// Retryable reports whether a caller MAY retry the operation that
// produced this code without changing the request.
func (c Code) Retryable() bool {
	switch c {
	case CodeTimeout, CodeStorageUnavailable, CodeCacheUnavailable, CodeBusUnavailable, CodeLLMUnavailable:
		return true
	default:
		return false
	}
}

// Error is the structured error every component returns for a
// caller-visible failure.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Code, e.Cause)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an Error carrying an underlying cause.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Is reports whether err is, or wraps, an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the Code from err, defaulting to CodeInternal when err
// is not a tagged *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Convenience constructors for the taxonomy's most common members.

func ValidationError(message string) *Error { return New(CodeValidation, message) }

func TenantNotFound(identifier string) *Error {
	return New(CodeTenantNotFound, fmt.Sprintf("tenant not found: %s", identifier))
}

func NotFound(message string) *Error { return New(CodeNotFound, message) }

func Forbidden(message string) *Error { return New(CodeForbidden, message) }

func Unauthorized(message string) *Error { return New(CodeUnauthorized, message) }

func Conflict(message string) *Error { return New(CodeConflict, message) }
