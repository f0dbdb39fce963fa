package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel kind behind the error code, so callers can use
// errors.Is(err, ErrNotFound) regardless of the underlying cause.
func (e *AppError) Is(target error) bool {
	kind, ok := codeKinds[e.Code]
	return ok && kind == target
}

// Error codes.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeTransient  = "TRANSIENT_ERROR"
	CodeExtraction = "EXTRACTION_ERROR"
	CodeConfig     = "CONFIG_ERROR"
)

// Common application errors
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("resource not found")
	ErrTransient     = errors.New("transient failure")
	ErrExtraction    = errors.New("text extraction failed")
	ErrConfiguration = errors.New("invalid configuration")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternal      = errors.New("internal error")
)

var codeKinds = map[string]error{
	CodeValidation: ErrValidation,
	CodeNotFound:   ErrNotFound,
	CodeTransient:  ErrTransient,
	CodeExtraction: ErrExtraction,
	CodeConfig:     ErrConfiguration,
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewValidationError(message string, cause error) error {
	return NewAppError(CodeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) error {
	return NewAppError(CodeNotFound, message, cause)
}

func NewTransientError(message string, cause error) error {
	return NewAppError(CodeTransient, message, cause)
}

func NewExtractionError(message string, cause error) error {
	return NewAppError(CodeExtraction, message, cause)
}

func NewConfigError(message string) error {
	return NewAppError(CodeConfig, message, ErrInvalidInput)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Retryable reports whether the broker may redeliver a job that failed with err.
// Only transient failures qualify; everything else fails the same way again.
func Retryable(err error) bool {
	return err != nil && errors.Is(err, ErrTransient)
}

// Kind returns a short stable label for the error taxonomy.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "unknown"
	}
}
