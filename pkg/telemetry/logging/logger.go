package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"mercator-hq/constitution/pkg/config"
)

// Config contains logger settings.
type Config struct {
	// Level is "debug", "info", "warn" or "error". Empty means info.
	Level string

	// Format is "json" or "text". Empty means json.
	Format string

	// AddSource includes file and line in records.
	AddSource bool

	// RedactPII masks personal data in messages and attributes.
	RedactPII bool

	// RedactPatterns are added after the built-in patterns.
	RedactPatterns []config.RedactPattern

	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// New builds a logger from cfg.
func New(cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var inner slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		inner = slog.NewJSONHandler(w, opts)
	case "text":
		inner = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", cfg.Format)
	}

	h := &handler{inner: inner}
	if cfg.RedactPII {
		h.redactor, err = NewRedactor(cfg.RedactPatterns)
		if err != nil {
			return nil, err
		}
	}

	return slog.New(h), nil
}

// FromConfig builds a logger from the logging section of the configuration.
func FromConfig(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	return New(Config{
		Level:          cfg.Level,
		Format:         cfg.Format,
		AddSource:      cfg.AddSource,
		RedactPII:      cfg.RedactPII,
		RedactPatterns: cfg.RedactPatterns,
		Writer:         w,
	})
}

// ParseLevel parses a level name. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Component returns logger tagged with the component name, or the default
// logger when logger is nil.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}
