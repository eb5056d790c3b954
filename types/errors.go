package types

import (
	"errors"
	"fmt"
)

// Error is the discriminated result every core operation returns on failure.
// Code is machine-readable; Message carries boundary-rendered text.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches two Errors by code so errors.Is works with code sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewError builds an Error with a formatted message.
func NewError(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Error codes returned by the core.
const (
	ErrDuplicateID     = "DUPLICATE_ID"
	ErrNotFound        = "NOT_FOUND"
	ErrInvalidState    = "INVALID_STATE"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrRetryExhausted  = "RETRY_EXHAUSTED"
	ErrNoRoute         = "NO_ROUTE"
	ErrInvalidArgument = "INVALID_ARGUMENT"
	ErrExecutionFailed = "EXECUTION_FAILED"
)
