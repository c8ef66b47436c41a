package orders

import (
	"errors"
	"fmt"
)

// Code classifies a failure for callers. The classes mirror how collaborator
// failures surface: bad input, missing entity, unreachable dependency,
// reachable-but-declined, or an unexpected internal fault.
type Code string

const (
	CodeValidation  Code = "VALIDATION"
	CodeNotFound    Code = "NOT_FOUND"
	CodeUnavailable Code = "UNAVAILABLE"
	CodeRejected    Code = "REJECTED"
	CodeInternal    Code = "INTERNAL"
)

// Error is a classified failure with a caller-facing message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a classified error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError classifies an underlying error.
func WrapError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validationf builds a VALIDATION error.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NOT_FOUND error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Rejectedf builds a REJECTED error.
func Rejectedf(format string, args ...any) *Error {
	return &Error{Code: CodeRejected, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the classification from err, defaulting to INTERNAL.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-facing message from err. Unclassified errors
// fall back to their raw text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
