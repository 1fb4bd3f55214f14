package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Margin error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR" // 400
	ErrBadRequest ErrorCode = "BAD_REQUEST"      // 400
	ErrNotFound   ErrorCode = "NOT_FOUND"        // 404
	ErrConflict   ErrorCode = "CONFLICT"         // 409
	ErrGone       ErrorCode = "GONE"             // 410
	ErrInternal   ErrorCode = "INTERNAL"         // 500
	ErrNetwork    ErrorCode = "NETWORK_ERROR"    // 503
)

// MarginError represents a structured error with code, status, and details.
type MarginError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Err is the underlying cause, if any. Not exposed to API clients.
	Err error
}

// Error implements the error interface.
func (e *MarginError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *MarginError) Unwrap() error {
	return e.Err
}

// NewValidation creates a 400 error for a malformed payload.
// fields maps a payload field to the rule it failed.
func NewValidation(msg string, fields map[string]string) *MarginError {
	e := &MarginError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
	}
	if len(fields) > 0 {
		e.Details = map[string]any{"fields": fields}
	}
	return e
}

// NewBadRequest creates a 400 error for a request that is well-formed but not applicable,
// e.g. restoring an annotation that is not deleted.
func NewBadRequest(msg string) *MarginError {
	return &MarginError{
		Code:    ErrBadRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for an unknown identifier.
func NewNotFound(identifier string) *MarginError {
	return &MarginError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewGone creates a 410 error for mutating a soft-deleted annotation.
func NewGone(id string) *MarginError {
	return &MarginError{
		Code:    ErrGone,
		Status:  410,
		Message: fmt.Sprintf("annotation %s has been deleted", id),
		Details: map[string]any{"id": id},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *MarginError {
	return &MarginError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewNetwork creates a 503 error for a failed round trip to the remote store.
func NewNetwork(err error) *MarginError {
	msg := "network error"
	if err != nil {
		msg = err.Error()
	}
	return &MarginError{
		Code:    ErrNetwork,
		Status:  503,
		Message: msg,
		Err:     err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *MarginError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &MarginError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is a MarginError with the given code.
func Is(err error, code ErrorCode) bool {
	var mErr *MarginError
	if stderrors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}

// As returns err as a *MarginError, converting unknown errors to ErrInternal.
func As(err error) *MarginError {
	var mErr *MarginError
	if stderrors.As(err, &mErr) {
		return mErr
	}
	return NewInternal(err)
}
