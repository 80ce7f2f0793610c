package apperr

import (
	"errors"
	"fmt"
)

// Error codes shared by every layer. The HTTP server maps them to status codes.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeResourceExhausted   = "RESOURCE_EXHAUSTED"
	CodeNotConfigured       = "NOT_CONFIGURED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	CodeUpstreamParse       = "UPSTREAM_PARSE_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error is a structured application error.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code, so sentinel
// values such as ErrNotFound work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// Sentinels usable with errors.Is. They carry a code and no message.
var (
	ErrValidation          = &Error{Code: CodeValidation}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrConflict            = &Error{Code: CodeConflict}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized}
	ErrForbidden           = &Error{Code: CodeForbidden}
	ErrResourceExhausted   = &Error{Code: CodeResourceExhausted}
	ErrNotConfigured       = &Error{Code: CodeNotConfigured}
	ErrUpstreamUnavailable = &Error{Code: CodeUpstreamUnavailable}
	ErrUpstreamTimeout     = &Error{Code: CodeUpstreamTimeout}
	ErrUpstreamParse       = &Error{Code: CodeUpstreamParse}
)

// New creates a new Error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to cause.
func Wrap(code string, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Code returns the code of the first *Error in the chain, or CodeInternal.
func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Message returns a client-safe message for err. Internal errors never
// leak their cause.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != CodeInternal {
		if appErr.Message != "" {
			return appErr.Message
		}
		return appErr.Error()
	}
	return "internal error"
}

func Validation(format string, args ...any) *Error {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

func NotFound(resource string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

func ResourceExhausted(message string) *Error {
	return New(CodeResourceExhausted, message)
}

func NotConfigured(feature string) *Error {
	return New(CodeNotConfigured, fmt.Sprintf("%s is not configured", feature))
}

func UpstreamUnavailable(service string, cause error) *Error {
	return Wrap(CodeUpstreamUnavailable, cause, fmt.Sprintf("%s is unavailable", service))
}

func UpstreamTimeout(service string, cause error) *Error {
	return Wrap(CodeUpstreamTimeout, cause, fmt.Sprintf("%s timed out", service))
}

func UpstreamParse(service string, cause error) *Error {
	return Wrap(CodeUpstreamParse, cause, fmt.Sprintf("%s returned an unparseable response", service))
}
