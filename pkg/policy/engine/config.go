package engine

import (
	"fmt"
	"time"
)

// FailMode determines the decision returned when the engine cannot evaluate.
type FailMode string

const (
	// FailClosed blocks when no decision can be determined. This is the default.
	FailClosed FailMode = "fail-closed"

	// FailOpen allows when no decision can be determined.
	FailOpen FailMode = "fail-open"
)

// Config contains engine configuration.
type Config struct {
	// FailMode selects the decision for engine failures.
	// Default: FailClosed.
	FailMode FailMode

	// RuleTimeout bounds a single custom predicate evaluation.
	// Default: 50ms.
	RuleTimeout time.Duration

	// TokenTTL is how long a pre-check token stays valid.
	// Default: 10m.
	TokenTTL time.Duration

	// RedactionPlaceholder replaces every redacted span.
	// Default: "[REDACTED]".
	RedactionPlaceholder string

	// MaxRedactionPasses bounds the redact-then-rescan loop.
	// Default: 3.
	MaxRedactionPasses int

	// AllowLegacy accepts free-text constitutions.
	AllowLegacy bool

	// MaxRules caps the rules of a document. Zero disables the cap.
	// Default: 1000.
	MaxRules int

	// DefaultLocale reads numbers and dates when a request declares no locale.
	// Default: "en".
	DefaultLocale string

	// FailureMessage is shown to the user when a check fails closed.
	FailureMessage string
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		FailMode:             FailClosed,
		RuleTimeout:          50 * time.Millisecond,
		TokenTTL:             10 * time.Minute,
		RedactionPlaceholder: "[REDACTED]",
		MaxRedactionPasses:   3,
		MaxRules:             1000,
		DefaultLocale:        "en",
		FailureMessage:       "This request cannot be processed right now.",
	}
}

// Validate validates the engine configuration.
func (c *Config) Validate() error {
	switch c.FailMode {
	case FailOpen, FailClosed:
	default:
		return fmt.Errorf("%w: invalid fail mode %q", ErrInvalidConfig, c.FailMode)
	}

	if c.RuleTimeout <= 0 {
		return fmt.Errorf("%w: rule timeout must be positive", ErrInvalidConfig)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: token ttl must be positive", ErrInvalidConfig)
	}
	if c.RedactionPlaceholder == "" {
		return fmt.Errorf("%w: redaction placeholder must not be empty", ErrInvalidConfig)
	}
	if c.MaxRedactionPasses <= 0 {
		return fmt.Errorf("%w: max redaction passes must be positive", ErrInvalidConfig)
	}
	if c.MaxRules < 0 {
		return fmt.Errorf("%w: max rules must not be negative", ErrInvalidConfig)
	}

	return nil
}

// WithFailMode sets the fail mode.
func (c *Config) WithFailMode(mode FailMode) *Config {
	c.FailMode = mode
	return c
}

// WithRuleTimeout sets the predicate budget.
func (c *Config) WithRuleTimeout(timeout time.Duration) *Config {
	c.RuleTimeout = timeout
	return c
}

// WithTokenTTL sets the pre-check token lifetime.
func (c *Config) WithTokenTTL(ttl time.Duration) *Config {
	c.TokenTTL = ttl
	return c
}

// WithPlaceholder sets the redaction placeholder.
func (c *Config) WithPlaceholder(placeholder string) *Config {
	c.RedactionPlaceholder = placeholder
	return c
}

// WithLegacy enables or disables the free-text format.
func (c *Config) WithLegacy(allow bool) *Config {
	c.AllowLegacy = allow
	return c
}
