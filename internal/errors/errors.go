// Package errors provides structured error types for worlddb.
// All errors include a category, code and message so that callers can
// distinguish local validation and mapping failures from engine failures.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryConnection ErrorCategory = "CONNECTION"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryMapping    ErrorCategory = "MAPPING"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Connection codes
	CodeNoReachableNode   = "NO_REACHABLE_NODE"
	CodeUnsupportedDriver = "UNSUPPORTED_DRIVER"
	CodeSessionClosed     = "SESSION_CLOSED"

	// Query codes
	CodeInvalidCriteria   = "INVALID_CRITERIA"
	CodeMixedPlaceholders = "MIXED_PLACEHOLDERS"
	CodeMissingArgument   = "MISSING_ARGUMENT"
	CodeArgumentCount     = "ARGUMENT_COUNT"
	CodeTableNotFound     = "TABLE_NOT_FOUND"
	CodeUnterminatedSQL   = "UNTERMINATED_SQL"

	// Mapping codes
	CodeInvalidMapping = "INVALID_MAPPING"
	CodeUnknownField   = "UNKNOWN_FIELD"
	CodeTypeMismatch   = "TYPE_MISMATCH"

	// Validation codes
	CodeMissingKeyColumn = "MISSING_KEY_COLUMN"
	CodeInvalidLimit     = "INVALID_LIMIT"
	CodeInvalidConfig    = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// WorldError is the structured error type used throughout the system.
type WorldError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *WorldError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *WorldError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *WorldError) Is(target error) bool {
	var t *WorldError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new WorldError.
func New(category ErrorCategory, code, message string) *WorldError {
	return &WorldError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new WorldError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *WorldError {
	return &WorldError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// Newf creates a new WorldError with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *WorldError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with additional details.
func (e *WorldError) WithDetails(details map[string]interface{}) *WorldError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a WorldError.
func GetCategory(err error) ErrorCategory {
	var we *WorldError
	if errors.As(err, &we) {
		return we.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a WorldError.
func GetCode(err error) string {
	var we *WorldError
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// IsValidation reports whether err was caused by invalid caller input.
func IsValidation(err error) bool {
	return GetCategory(err) == ErrCategoryValidation
}

// Convenience constructors for common errors.

func NewConnectionError(code, message string, cause error) *WorldError {
	return Wrap(ErrCategoryConnection, code, message, cause)
}

func NewQueryError(code, message string) *WorldError {
	return New(ErrCategoryQuery, code, message)
}

func NewMappingError(code, message string) *WorldError {
	return New(ErrCategoryMapping, code, message)
}

func NewValidationError(code, message string) *WorldError {
	return New(ErrCategoryValidation, code, message)
}

func NewInternalError(message string, cause error) *WorldError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
