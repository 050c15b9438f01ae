package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldLabels maps struct field names to user-friendly labels
var FieldLabels = map[string]string{
	"FirstName":      "First name",
	"LastName":       "Last name",
	"PhoneNumber":    "Phone number",
	"Email":          "Email",
	"BirthDate":      "Birth date",
	"ExpectedSalary": "Expected salary",
	"Notes":          "Notes",
	"Photo":          "Photo",
}

// FailedFields returns the struct field names rejected by the validator, in
// the order the validator reported them.
func FailedFields(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	fields := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		fields = append(fields, e.StructField())
	}
	return fields
}

// FormatValidationErrors converts validator.ValidationErrors to user-friendly messages
func FormatValidationErrors(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		// Not a validation error, return generic message
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleError(e))
	}
	return messages
}

// FieldMessage returns the message shown next to a field flagged invalid.
func FieldMessage(field string) string {
	label := getFieldLabel(field)
	switch field {
	case "Email":
		return fmt.Sprintf("%s: required and must be a valid email address", label)
	case "BirthDate":
		return fmt.Sprintf("%s: required (dd/MM/yyyy), candidate must be at least %d", label, MinimumAge)
	default:
		return fmt.Sprintf("%s: required", label)
	}
}

// formatSingleError formats a single validation error to a user-friendly message
func formatSingleError(e validator.FieldError) string {
	label := getFieldLabel(e.StructField())

	switch e.Tag() {
	case "required", "not_blank":
		return fmt.Sprintf("%s: required", label)
	case "email":
		return fmt.Sprintf("%s: invalid email format", label)
	case "adult":
		return fmt.Sprintf("%s: candidate must be at least %d years old", label, MinimumAge)
	case "max":
		return fmt.Sprintf("%s: at most %s characters", label, e.Param())
	default:
		// Fallback for unknown tags
		return fmt.Sprintf("%s: validation failed (%s)", label, e.Tag())
	}
}

// getFieldLabel returns the user-friendly label for a field
func getFieldLabel(fieldName string) string {
	if label, ok := FieldLabels[fieldName]; ok {
		return label
	}
	// Return field name with spaces between camelCase words
	return formatCamelCase(fieldName)
}

// formatCamelCase converts CamelCase to spaced words
func formatCamelCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune(' ')
		}
		result.WriteRune(r)
	}
	return result.String()
}
