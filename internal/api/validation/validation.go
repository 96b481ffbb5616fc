package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func required(errs []FieldError, field, value string, max int) []FieldError {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		return append(errs, FieldError{Field: field, Message: field + " is required"})
	case len(v) > max:
		return append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s must be at most %d characters", field, max)})
	}
	return errs
}

func hasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}
