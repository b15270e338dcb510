// Package errors defines the gateway's service error taxonomy.
//
// A ServiceError pairs a stable code and a user-facing message with the HTTP
// status it maps to. The wrapped cause is kept for logging and never rendered
// to clients.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a failure category.
type ErrorCode string

const (
	CodeConfiguration      ErrorCode = "CONFIGURATION_ERROR"
	CodeModeNotSupported   ErrorCode = "MODE_NOT_SUPPORTED"
	CodeRegistrationClosed ErrorCode = "REGISTRATION_CLOSED"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeMalformedRequest   ErrorCode = "MALFORMED_REQUEST"
	CodeUserExists         ErrorCode = "USER_EXISTS"
	CodeBackend            ErrorCode = "BACKEND_ERROR"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// ServiceError is an error with a client-safe message and an HTTP status.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of e with key set in its details.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// New creates a ServiceError.
func New(code ErrorCode, message string, status int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// GetServiceError returns the first ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// Is reports whether err carries a ServiceError with the given code.
func Is(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

// Configuration reports an invalid server environment. problems are exposed
// to the caller as details.
func Configuration(problems []string) *ServiceError {
	return New(CodeConfiguration, "server configuration error", http.StatusInternalServerError, nil).
		WithDetails("errors", problems)
}

// ModeNotSupported reports that the current storage mode cannot register users.
func ModeNotSupported() *ServiceError {
	return New(CodeModeNotSupported, "registration is not supported in the current storage mode", http.StatusBadRequest, nil)
}

// RegistrationClosed reports that the site has registration turned off.
func RegistrationClosed() *ServiceError {
	return New(CodeRegistrationClosed, "registration is closed", http.StatusBadRequest, nil)
}

// InvalidInput reports a missing or malformed request field.
func InvalidInput(message string) *ServiceError {
	return New(CodeInvalidInput, message, http.StatusBadRequest, nil)
}

// MalformedRequest reports a request body that could not be decoded.
func MalformedRequest(err error) *ServiceError {
	return New(CodeMalformedRequest, "malformed request", http.StatusBadRequest, err)
}

// UserExists reports a username collision. The same error is used for the
// administrator identity so that name is not disclosed.
func UserExists() *ServiceError {
	return New(CodeUserExists, "user already exists", http.StatusBadRequest, nil)
}

// Backend reports a failed storage backend call with a classified message.
func Backend(message string, err error) *ServiceError {
	return New(CodeBackend, message, http.StatusInternalServerError, err)
}

// Forbidden reports a denied request.
func Forbidden(message string) *ServiceError {
	return New(CodeForbidden, message, http.StatusForbidden, nil)
}

// RateLimitExceeded reports a throttled client.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(CodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests, nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Internal reports an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return New(CodeInternal, message, http.StatusInternalServerError, err)
}
