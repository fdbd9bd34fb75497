// Package apperr defines the machine-readable error taxonomy surfaced
// at the service boundary. Callers match on Code, never on message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class.
type Code string

const (
	CodeNoFile        Code = "NO_FILE_PROVIDED"
	CodeFileTooLarge  Code = "FILE_TOO_LARGE"
	CodeBadRequest    Code = "INVALID_REQUEST"
	CodeDecryptFailed Code = "DECRYPTION_FAILED"
	CodeInvalidDB     Code = "INVALID_DATABASE"
	CodeQueryFailed   Code = "QUERY_FAILED"
	CodeDecompression Code = "DECOMPRESSION_FAILED"
	CodeUnknown       Code = "UNKNOWN_ERROR"
)

// Error pairs a Code with a user-facing message. The wrapped cause is
// for server-side logs only and must never reach the response body.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New creates an Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf extracts the Code from an error chain. Errors that carry no
// Code classify as UNKNOWN_ERROR.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// MessageOf extracts the user-facing message from an error chain,
// falling back to a generic message for unclassified errors.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an unexpected error occurred"
}

// HTTPStatus maps a Code to its response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNoFile, CodeBadRequest:
		return http.StatusBadRequest
	case CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
