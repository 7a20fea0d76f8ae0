package validation

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kbukum/rediskit/errors"
)

// Validator collects validation errors for checks that struct tags cannot
// express, such as relations between fields.
type Validator struct {
	errors []FieldError
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{
		errors: make([]FieldError, 0),
	}
}

// AddError adds a field error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Validate returns an AppError if there are validation errors, nil otherwise.
func (v *Validator) Validate() *errors.AppError {
	if !v.HasErrors() {
		return nil
	}

	messages := make([]string, len(v.errors))
	for i, e := range v.errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}

	appErr := errors.Validation(strings.Join(messages, "; "))
	appErr.Details = map[string]any{
		"fields": v.errors,
	}

	return appErr
}

// Required checks if a string is non-empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// AtMost checks that value does not exceed limit. limitField names the
// setting limit comes from, so the message points at both.
func (v *Validator) AtMost(field string, value int, limitField string, limit int) *Validator {
	if value > limit {
		v.AddError(field, fmt.Sprintf("must not exceed %s (%d)", limitField, limit))
	}
	return v
}

// Timeout checks that a non-empty string parses as a time.Duration that is
// not negative. Settings where a negative value has a meaning skip this.
func (v *Validator) Timeout(field, value string) *Validator {
	if value == "" {
		return v
	}
	d, err := time.ParseDuration(value)
	switch {
	case err != nil:
		v.AddError(field, fmt.Sprintf("invalid duration %q", value))
	case d < 0:
		v.AddError(field, "must not be negative")
	}
	return v
}

// OneOf checks if a value is one of the allowed values. Empty values pass.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" || slices.Contains(allowed, value) {
		return v
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
	return v
}
