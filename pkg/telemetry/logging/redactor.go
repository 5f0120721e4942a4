package logging

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"mercator-hq/constitution/pkg/config"
)

// Built-in pattern names.
const (
	PatternBearerToken = "bearer_token"
	PatternAPIKey      = "api_key"
	PatternPassword    = "password"
	PatternEmail       = "email"
	PatternCreditCard  = "credit_card"
	PatternSSN         = "ssn"
	PatternIPv6        = "ipv6"
	PatternIPv4        = "ipv4"
	PatternPhone       = "phone"
)

// Redactor masks personal data in log messages and attributes.
type Redactor struct {
	// patterns run in order; earlier patterns win on overlapping text.
	patterns []redactPattern
}

type redactPattern struct {
	name    string
	regex   *regexp.Regexp
	replace func(string) string
}

func literal(s string) func(string) string {
	return func(string) string { return s }
}

// NewRedactor compiles the built-in patterns followed by custom. An invalid
// custom pattern is an error.
func NewRedactor(custom []config.RedactPattern) (*Redactor, error) {
	r := &Redactor{}

	builtin := []struct {
		name    string
		expr    string
		replace func(string) string
	}{
		{PatternBearerToken, `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, literal("Bearer ***")},
		{PatternAPIKey, `(\bsk-[a-zA-Z0-9_-]{6,}|api[-_]?key[-_:=]\s*[a-zA-Z0-9]+)`, literal("sk-***")},
		{PatternPassword, `(?i)(password|passwd|pwd)[:=]\s*[^\s]+`, nil},
		{PatternEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, RedactEmail},
		{PatternCreditCard, `\b(?:\d[ -]?){12,15}\d\b`, RedactCreditCard},
		{PatternSSN, `\b\d{3}-\d{2}-\d{4}\b`, literal("***-**-****")},
		{PatternIPv6, `\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b`, literal("****:****:****:****:****:****:****:****")},
		{PatternIPv4, `\b(?:\d{1,3}\.){3}\d{1,3}\b`, RedactIPv4},
		{PatternPhone, `(?:\+?1[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]\d{4}\b`, literal("***-***-****")},
	}

	for _, p := range builtin {
		re := regexp.MustCompile(p.expr)
		replace := p.replace
		if p.name == PatternPassword {
			replace = func(m string) string {
				return re.ReplaceAllString(m, "$1: ***")
			}
		}
		r.patterns = append(r.patterns, redactPattern{name: p.name, regex: re, replace: replace})
	}

	for _, p := range custom {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p.Name, err)
		}
		replacement := p.Replacement
		if replacement == "" {
			replacement = "***"
		}
		r.patterns = append(r.patterns, redactPattern{
			name:    p.Name,
			regex:   re,
			replace: func(m string) string { return re.ReplaceAllString(m, replacement) },
		})
	}

	return r, nil
}

// Patterns returns the pattern names in evaluation order.
func (r *Redactor) Patterns() []string {
	names := make([]string, len(r.patterns))
	for i, p := range r.patterns {
		names[i] = p.name
	}
	return names
}

// RedactString masks every pattern match in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllStringFunc(value, p.replace)
	}
	return value
}

// RedactAttr returns a with sensitive keys masked and string values
// scrubbed. Groups are processed recursively.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = r.RedactAttr(ga)
		}
		a.Value = slog.GroupValue(out...)
		return a
	}

	if isSensitiveKey(a.Key) {
		a.Value = slog.StringValue(maskValue(a.Value))
		return a
	}

	switch a.Value.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(r.RedactString(a.Value.String()))
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case error:
			a.Value = slog.StringValue(r.RedactString(v.Error()))
		case []string:
			out := make([]string, len(v))
			for i, s := range v {
				out[i] = r.RedactString(s)
			}
			a.Value = slog.AnyValue(out)
		case fmt.Stringer:
			a.Value = slog.StringValue(r.RedactString(v.String()))
		}
	}
	return a
}

var sensitiveKeys = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"authorization", "ssn", "credit_card", "creditcard", "private_key",
}

// isSensitiveKey reports whether a key names a credential or identifier
// whose value is masked outright.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	if lower == "pwd" || lower == "cc" || lower == "auth" {
		return true
	}
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// maskValue keeps a four character hint of string values.
func maskValue(v slog.Value) string {
	if v.Kind() != slog.KindString {
		return "***"
	}
	s := v.String()
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***"
}

// RedactEmail keeps the first character of the local part and the domain.
func RedactEmail(email string) string {
	user, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	if user == "" {
		return "***@" + domain
	}
	return user[:1] + "***@" + domain
}

// RedactCreditCard keeps only the last four digits.
func RedactCreditCard(cc string) string {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(cc)
	if len(digits) < 13 || len(digits) > 16 {
		return cc
	}
	return "****-****-****-" + digits[len(digits)-4:]
}

// RedactIPv4 keeps only the first octet.
func RedactIPv4(ip string) string {
	first, _, ok := strings.Cut(ip, ".")
	if !ok {
		return ip
	}
	return first + ".*.*.*"
}
