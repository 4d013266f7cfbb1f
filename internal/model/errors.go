package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an AppError
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindNotFound            ErrorKind = "not_found"
	KindUpstream            ErrorKind = "upstream"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindInternal            ErrorKind = "internal"
)

// Error codes returned to clients in the statusCode field
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeDeviceMismatch       = "DEVICE_MISMATCH"
	CodeSubscriberIDNotFound = "SUBSCRIBER_ID_NOT_FOUND"
	CodeUpstreamUnavailable  = "UPSTREAM_UNAVAILABLE"
	CodeInternalServerError  = "INTERNAL_SERVER_ERROR"
)

// AppError is the error type surfaced to the HTTP boundary
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// NewValidationError is returned for malformed or missing input
func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Code: CodeValidation, Message: message, Status: http.StatusBadRequest}
}

// NewUnauthorizedError is returned for a failed identity check
func NewUnauthorizedError(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Code: CodeUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

// NewDeviceMismatchError is returned when the request's device is not the user's active device
func NewDeviceMismatchError() *AppError {
	return &AppError{
		Kind:    KindUnauthorized,
		Code:    CodeDeviceMismatch,
		Message: "This account is logged in on another device",
		Status:  http.StatusUnauthorized,
	}
}

// NewSubscriberNotFoundError is returned when no identity mapping exists
func NewSubscriberNotFoundError() *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    CodeSubscriberIDNotFound,
		Message: "Subscriber id not found in database",
		Status:  http.StatusNotFound,
	}
}

// NewUpstreamUnavailableError wraps a transport failure or timeout talking to a provider
func NewUpstreamUnavailableError(err error) *AppError {
	return &AppError{
		Kind:    KindUpstreamUnavailable,
		Code:    CodeUpstreamUnavailable,
		Message: "upstream provider unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// NewInternalError wraps an unexpected failure
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Code:    CodeInternalServerError,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// AsAppError extracts an AppError from err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries an AppError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Kind == kind
}
