package ast

import (
	"fmt"
	"strings"
)

// Severity is the totally ordered weight of a violation.
// Conflict resolution takes the maximum severity across all violations.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityBlock
	SeverityFatal
)

var severityNames = map[Severity]string{
	SeverityNone:  "none",
	SeverityInfo:  "info",
	SeverityWarn:  "warn",
	SeverityBlock: "block",
	SeverityFatal: "fatal",
}

// String returns the lower-case name of the severity.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Blocks reports whether a decision at this severity refuses the request.
func (s Severity) Blocks() bool {
	return s >= SeverityBlock
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity converts a document severity name. "none" is not a valid
// rule severity and is rejected.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "info":
		return SeverityInfo, nil
	case "warn", "warning":
		return SeverityWarn, nil
	case "block":
		return SeverityBlock, nil
	case "fatal":
		return SeverityFatal, nil
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", name)
}

// SeverityNames lists the severities accepted in a document.
func SeverityNames() []string {
	return []string{"info", "warn", "block", "fatal"}
}
