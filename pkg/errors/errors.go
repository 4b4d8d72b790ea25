package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors covering the passenger edit & approval taxonomy.
var (
	ErrNotFound         = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden        = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized     = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation       = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrMissingReason    = New("MISSING_REASON", http.StatusBadRequest, "a reason is required after the free-edit window closes")
	ErrCapacityExceeded = New("CAPACITY_EXCEEDED", http.StatusConflict, "transaction passenger limit exceeded")
	ErrUnknownField     = New("UNKNOWN_FIELD", http.StatusBadRequest, "unknown passenger field")
	ErrAlreadyDecided   = New("ALREADY_DECIDED", http.StatusConflict, "approval request already decided")
	ErrConflict         = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInfrastructure   = New("INFRASTRUCTURE_ERROR", http.StatusBadGateway, "downstream collaborator failure")
	ErrInternal         = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss        = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Infrastructure wraps a persistence or notification collaborator failure so
// the transport layer can distinguish it from caller mistakes.
func Infrastructure(err error, message string) *Error {
	return Wrap(err, ErrInfrastructure.Code, ErrInfrastructure.Status, message)
}
