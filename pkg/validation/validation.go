package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxSessionIDLength = 100

// SessionIDRegex validates session ID format
var SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateSessionID validates a call session id.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if len(sessionID) > maxSessionIDLength {
		return fmt.Errorf("session ID is too long (max %d characters)", maxSessionIDLength)
	}
	if !SessionIDRegex.MatchString(sessionID) {
		return fmt.Errorf("invalid session ID format (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateAdaptationLevel validates a manual level override.
func ValidateAdaptationLevel(level string) error {
	switch strings.TrimSpace(level) {
	case "":
		return fmt.Errorf("level is required")
	case "max", "high", "medium", "low", "audio-only":
		return nil
	default:
		return fmt.Errorf("invalid level %q (must be max, high, medium, low, or audio-only)", level)
	}
}

// ValidateScenarioName validates a simulation scenario name.
func ValidateScenarioName(name string) error {
	if err := ValidateNonEmptyString(name, "scenario"); err != nil {
		return err
	}
	return ValidateStringLength(name, 1, 64, "scenario")
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
