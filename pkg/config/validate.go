package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path of the field, e.g. "engine.fail_mode".
	Field string

	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Has reports whether a field error exists for field.
func (e ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks struct tags first and then the rules spanning several
// fields. All failures are returned together in a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, FieldError{Field: fieldPath(fe), Message: describe(fe)})
		}
	}

	errs = append(errs, validateCrossField(cfg)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "hostname_port":
		return "must be a valid host:port"
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func validateCrossField(cfg *Config) []FieldError {
	var errs []FieldError

	if cfg.Document.Watch && cfg.Document.Path == "" {
		errs = append(errs, FieldError{Field: "document.path", Message: "is required when watch is enabled"})
	}

	if git := cfg.Document.Git; git.Enabled {
		if git.Repository == "" {
			errs = append(errs, FieldError{Field: "document.git.repository", Message: "is required when git is enabled"})
		}
		if git.Branch == "" {
			errs = append(errs, FieldError{Field: "document.git.branch", Message: "is required when git is enabled"})
		}
		if git.File == "" {
			errs = append(errs, FieldError{Field: "document.git.file", Message: "is required when git is enabled"})
		}
		if git.Auth.Type == "token" && git.Auth.Token == "" {
			errs = append(errs, FieldError{Field: "document.git.auth.token", Message: "is required for token auth"})
		}
		if git.Auth.Type == "ssh" && git.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{Field: "document.git.auth.ssh_key_path", Message: "is required for ssh auth"})
		}
		if cfg.Document.Watch {
			errs = append(errs, FieldError{Field: "document.watch", Message: "cannot be combined with git, use document.git.poll"})
		}
	}

	seen := make(map[string]bool, len(cfg.Logging.RedactPatterns))
	for i, p := range cfg.Logging.RedactPatterns {
		field := fmt.Sprintf("logging.redact_patterns[%d]", i)
		if seen[p.Name] {
			errs = append(errs, FieldError{Field: field + ".name", Message: fmt.Sprintf("duplicate pattern name %q", p.Name)})
		}
		seen[p.Name] = true
		if p.Pattern == "" {
			continue
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{Field: field + ".pattern", Message: fmt.Sprintf("invalid regular expression: %v", err)})
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		errs = append(errs, FieldError{Field: "metrics.address", Message: "is required when metrics are enabled"})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Exporter == "none" {
		errs = append(errs, FieldError{Field: "tracing.exporter", Message: "must name an exporter when tracing is enabled"})
	}

	if cfg.Evidence.Enabled && cfg.Evidence.Backend == "sqlite" && cfg.Evidence.SQLite.Path == "" {
		errs = append(errs, FieldError{Field: "evidence.sqlite.path", Message: "is required for the sqlite backend"})
	}
	if cfg.Evidence.SQLite.MaxIdleConns > cfg.Evidence.SQLite.MaxOpenConns {
		errs = append(errs, FieldError{Field: "evidence.sqlite.max_idle_conns", Message: "must not exceed max_open_conns"})
	}

	ret := cfg.Evidence.Retention
	if ret.ArchiveBeforeDelete && ret.ArchivePath == "" {
		errs = append(errs, FieldError{Field: "evidence.retention.archive_path", Message: "is required when archive_before_delete is enabled"})
	}
	if ret.PruneSchedule != "" {
		if _, err := cron.ParseStandard(ret.PruneSchedule); err != nil {
			errs = append(errs, FieldError{Field: "evidence.retention.prune_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}

	return errs
}
