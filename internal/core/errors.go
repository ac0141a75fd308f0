package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf creates a new error with the same code and a formatted cause.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// Predefined errors
var (
	// Dispatch errors
	ErrCredentialMissing = &Error{Code: "CREDENTIAL_MISSING", Message: "provider credential missing"}
	ErrConfigMissing     = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
	ErrConfigInvalid     = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrEmptyRequest      = &Error{Code: "EMPTY_REQUEST", Message: "no valid messages in request"}
	ErrNoUserMessage     = &Error{Code: "NO_USER_MESSAGE", Message: "request has no user message"}
	ErrTransport         = &Error{Code: "TRANSPORT_FAILURE", Message: "provider request failed"}
	ErrEndpoint          = &Error{Code: "ENDPOINT_MISCONFIGURED", Message: "provider endpoint misconfigured"}

	// API errors
	ErrBadRequest   = &Error{Code: "BAD_REQUEST", Message: "malformed request"}
	ErrNotFound     = &Error{Code: "NOT_FOUND", Message: "resource not found"}
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}

	// Store errors
	ErrStoreFailed = &Error{Code: "STORE_FAILED", Message: "conversation store operation failed"}

	// Archive errors
	ErrArchiveFailed = &Error{Code: "ARCHIVE_FAILED", Message: "transcript archive operation failed"}
)
