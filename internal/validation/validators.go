package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/mentra/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("override_kind", validateOverrideKind); err != nil {
		panic(fmt.Sprintf("failed to register override_kind validator: %v", err))
	}
	if err := Validate.RegisterValidation("hostname_fragment", validateHostnameFragment); err != nil {
		panic(fmt.Sprintf("failed to register hostname_fragment validator: %v", err))
	}
}

func validateOverrideKind(fl validator.FieldLevel) bool {
	return models.OverrideKind(fl.Field().String()).Valid()
}

func validateHostnameFragment(fl validator.FieldLevel) bool {
	return ValidateHostnameFragment(fl.Field().String()) == nil
}

// ValidateHostnameFragment checks a blocked-site entry such as "reddit.com".
// Entries are matched as substrings of hostnames, so they may not contain a
// scheme, path, port or whitespace.
func ValidateHostnameFragment(value string) error {
	if value == "" {
		return errors.New("site must not be empty")
	}
	if len(value) > 253 {
		return fmt.Errorf("site %q is longer than 253 characters", value)
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
		default:
			return fmt.Errorf("site %q contains invalid character %q", value, r)
		}
	}
	return nil
}

// NormalizeSite lower-cases and trims a blocked-site entry, dropping a
// leading scheme and "www." so user input like "https://www.Reddit.com/" is accepted.
func NormalizeSite(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if i := strings.Index(value, "://"); i >= 0 {
		value = value[i+3:]
	}
	if i := strings.IndexAny(value, "/?#"); i >= 0 {
		value = value[:i]
	}
	return strings.TrimPrefix(value, "www.")
}

// ValidateOverrideKind validates an override kind string value
func ValidateOverrideKind(value string) error {
	if models.OverrideKind(value).Valid() {
		return nil
	}
	return fmt.Errorf("invalid override kind: %s (must be '10min', 'session', or 'tomorrow')", value)
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
