package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeTransient indicates a recoverable network or I/O error; callers retry with backoff
	ErrorTypeTransient ErrorType = "TRANSIENT"
	// ErrorTypeNotFound indicates a device or playlist was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"
	// ErrorTypeIntegrity indicates a hash mismatch or failed decode probe
	ErrorTypeIntegrity ErrorType = "INTEGRITY"
	// ErrorTypeSessionExpired indicates stale credentials requiring re-authentication
	ErrorTypeSessionExpired ErrorType = "SESSION_EXPIRED"
	// ErrorTypeCritical indicates an unexpected fault routed to the crash handler
	ErrorTypeCritical ErrorType = "CRITICAL"
	// ErrorTypeThermal indicates a temperature alert; logged and mitigated, never fatal
	ErrorTypeThermal ErrorType = "THERMAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new application error
func New(errorType ErrorType, message string) error {
	return &AppError{
		Type:    errorType,
		Message: message,
	}
}

// Wrap wraps an error with an application error
func Wrap(errorType ErrorType, message string, err error) error {
	return &AppError{
		Type:    errorType,
		Message: message,
		Err:     err,
	}
}

// Transient creates a retryable error
func Transient(message string) error {
	return New(ErrorTypeTransient, message)
}

// NotFound creates a not found error
func NotFound(message string) error {
	return New(ErrorTypeNotFound, message)
}

// Integrity creates an integrity error
func Integrity(message string) error {
	return New(ErrorTypeIntegrity, message)
}

// SessionExpired creates a session expired error
func SessionExpired(message string) error {
	return New(ErrorTypeSessionExpired, message)
}

// Critical creates a critical error
func Critical(message string) error {
	return New(ErrorTypeCritical, message)
}

// Thermal creates a temperature alert error
func Thermal(message string) error {
	return New(ErrorTypeThermal, message)
}

// IsType checks whether err carries the given application error type.
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsIntegrity checks if an error is an integrity error
func IsIntegrity(err error) bool {
	return IsType(err, ErrorTypeIntegrity)
}

// IsSessionExpired checks if an error is a session expired error
func IsSessionExpired(err error) bool {
	return IsType(err, ErrorTypeSessionExpired)
}

// IsCritical checks if an error is a critical error
func IsCritical(err error) bool {
	return IsType(err, ErrorTypeCritical)
}

// IsThermal checks if an error is a temperature alert
func IsThermal(err error) bool {
	return IsType(err, ErrorTypeThermal)
}

// IsRetryable reports whether the operation that produced err may be retried.
// Transient and integrity failures are retryable; not-found and session errors
// need external intervention first.
func IsRetryable(err error) bool {
	return IsType(err, ErrorTypeTransient) || IsType(err, ErrorTypeIntegrity)
}
