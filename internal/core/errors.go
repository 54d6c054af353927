// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// Error is a coded error. Code is stable and safe to show to API clients;
// Cause carries the detail.
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

// AsError returns the first *Error in err's chain, or fallback wrapping
// err when there is none. It returns nil for a nil err.
func AsError(err error, fallback *Error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return WrapError(fallback, err)
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Data errors
	ErrSymbolNotFound  = &Error{Code: "SYMBOL_NOT_FOUND", Message: "symbol not found"}
	ErrNoData          = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrDataUnavailable = &Error{Code: "DATA_UNAVAILABLE", Message: "no coverage for the requested span"}
	ErrFeedFailed      = &Error{Code: "FEED_FAILED", Message: "price feed failed"}

	// Simulation errors
	ErrSimulationFailed = &Error{Code: "SIMULATION_FAILED", Message: "simulation failed"}
	ErrJobNotFound      = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// API errors
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}
)
