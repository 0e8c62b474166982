package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/edulane/insights-api/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("event_type", validateEventType); err != nil {
		panic(fmt.Sprintf("failed to register event_type validator: %v", err))
	}
	if err := Validate.RegisterValidation("operator_role", validateOperatorRole); err != nil {
		panic(fmt.Sprintf("failed to register operator_role validator: %v", err))
	}
}

// validateEventType validates that a string is a valid EventType enum value
func validateEventType(fl validator.FieldLevel) bool {
	return models.EventType(fl.Field().String()).Valid()
}

// validateOperatorRole validates that a string is a valid OperatorRole enum value
func validateOperatorRole(fl validator.FieldLevel) bool {
	return models.OperatorRole(fl.Field().String()).Valid()
}

// ValidateRangeKey validates a range key against the canonical table.
// Unknown keys are rejected, never silently defaulted.
func ValidateRangeKey(ranges models.RangeTable, key string) error {
	_, err := ranges.Resolve(key)
	return err
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateEventType validates an EventType string value
func ValidateEventType(value string) error {
	if !models.EventType(value).Valid() {
		return fmt.Errorf("invalid event_type: %s", value)
	}
	return nil
}
