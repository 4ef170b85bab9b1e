// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Invalid configuration, missing columns or timestamps
//   - Data/Resource errors (200-299): Data source, storage and export failures
//   - Backtest errors (600-699): Backtesting engine and state errors
//   - Market data errors (700-799): Market data download and parsing errors
//   - Notification errors (800-899): Alert dispatch and outbox failures
//
// Usage:
//
//	err := errors.New(errors.ErrCodeInvalidConfiguration, "lot_size must be positive")
//	err := errors.Wrap(errors.ErrCodeQueryFailed, "failed to read parquet", originalErr)
//	if errors.HasCode(err, errors.ErrCodeMissingColumns) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	var m *MissingColumnsError
	if errors.As(err, &m) {
		return ErrCodeMissingColumns
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// MissingColumnsError is returned when a table still lacks required columns
// after every derivable column has been computed.
type MissingColumnsError struct {
	Columns []string
}

// NewMissingColumnsError creates a MissingColumnsError for the given column names.
func NewMissingColumnsError(columns []string) *MissingColumnsError {
	cols := make([]string, len(columns))
	copy(cols, columns)

	return &MissingColumnsError{Columns: cols}
}

// Error implements the error interface.
func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("[%d] missing required columns after indicator preparation: [%s]",
		ErrCodeMissingColumns, strings.Join(e.Columns, ", "))
}

// IsMissingColumnsError checks if an error is a MissingColumnsError.
func IsMissingColumnsError(err error) bool {
	var missing *MissingColumnsError

	return errors.As(err, &missing)
}
