package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider validates an LLM provider name
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "ollama", "openai", "anthropic":
		return nil
	case "":
		return fmt.Errorf("llm provider cannot be empty")
	default:
		return fmt.Errorf("unsupported llm provider: %s (must be ollama, openai, or anthropic)", provider)
	}
}

// ValidateURL validates that raw is an absolute URL with one of the given schemes
func (v *Validator) ValidateURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("url cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}

	for _, scheme := range schemes {
		if strings.EqualFold(u.Scheme, scheme) {
			return nil
		}
	}

	return fmt.Errorf("invalid url %q: scheme must be one of %s", raw, strings.Join(schemes, ", "))
}

// ValidateTemperature validates a sampling temperature
func (v *Validator) ValidateTemperature(temperature float64) error {
	if temperature < 0 || temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// ValidateLogLevel validates a log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}

	return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
}

// ValidateIdentifier validates a SQL identifier used for table names
func (v *Validator) ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier: %q", name)
	}
	return nil
}
