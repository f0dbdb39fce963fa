package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validator provides validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
			// later rules assume the earlier ones passed
			break
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Err returns nil or a VALIDATION_ERROR AppError carrying every collected failure.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	causes := make([]error, 0, len(v.errors))
	for _, e := range v.errors {
		causes = append(causes, e)
	}
	return NewValidationError(v.ErrorMessage(), errors.Join(causes...))
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value interface{}) *ValidationError

// Required - Common validation rules
func Required(fieldName string, value interface{}) *ValidationError {
	if value == nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}

	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	case *string:
		if v == nil || strings.TrimSpace(*v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	}
	return nil
}

// String rejects values that are not strings.
func String(fieldName string, value interface{}) *ValidationError {
	if _, ok := value.(string); !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a string"}
	}
	return nil
}

// MaxLength returns a rule capping the rune length of a string value.
func MaxLength(max int) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		str, ok := value.(string)
		if !ok {
			return nil
		}
		if utf8.RuneCountInString(str) > max {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("must be at most %d characters", max),
			}
		}
		return nil
	}
}

// PositiveInteger accepts integers, integral floats, json.Number and numeric
// strings greater than zero.
func PositiveInteger(fieldName string, value interface{}) *ValidationError {
	n, err := CoerceInt64(value)
	if err != nil {
		return &ValidationError{Field: fieldName, Value: value, Message: err.Error()}
	}
	if n <= 0 {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a positive integer"}
	}
	return nil
}

// CoerceInt64 converts a loosely typed payload value to an int64.
func CoerceInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case float64:
		return floatToInt64(v)
	case float32:
		return floatToInt64(float64(v))
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, errors.New("must be numeric")
		}
		return floatToInt64(f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errors.New("must be numeric")
		}
		return n, nil
	default:
		return 0, errors.New("must be numeric")
	}
}

func floatToInt64(f float64) (int64, error) {
	// fractional IDs are rejected rather than truncated
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errors.New("must be an integer")
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
	if f >= 1<<63 || f < -1<<63 {
		return 0, errors.New("is out of range")
	}
	return int64(f), nil
}
