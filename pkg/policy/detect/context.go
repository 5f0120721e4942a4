package detect

import (
	"strings"
	"sync"
	"time"

	"mercator-hq/constitution/pkg/constitution/ast"
)

// Context is the payload under test and its ambient metadata.
type Context struct {
	Stage     ast.Stage
	Text      string
	ToolName  string
	SessionID string
	Timestamp time.Time

	// Locale is a BCP 47 tag used to read numbers and dates in fields.
	Locale string

	// Arguments are the structured arguments of the tool call.
	Arguments map[string]any

	// Output is the structured tool result (post stage).
	Output any

	// Metadata carries tool-reported facts such as the records touched.
	Metadata map[string]any
}

// Input is a Context prepared for detection. It is read-only and shared by
// every detector of one evaluation.
type Input struct {
	*Context

	// Normalized is Text after NFKC normalization. Match spans index into it.
	Normalized string

	// DefaultLocale applies when neither the condition nor the context sets one.
	DefaultLocale string

	foldOnce sync.Once
	folded   *Offsets
}

// Folded is the case-folded form of Normalized, built on first use.
// Its Original method maps spans back into Normalized.
func (in *Input) Folded() *Offsets {
	in.foldOnce.Do(func() { in.folded = foldOffsets(in.Normalized) })
	return in.folded
}

// Prepare normalizes ec for detection.
func Prepare(ec *Context, defaultLocale string) *Input {
	if ec == nil {
		ec = &Context{}
	}
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	return &Input{Context: ec, Normalized: Normalize(ec.Text), DefaultLocale: defaultLocale}
}

// Lookup resolves a dot path against the input. Recognised roots are
// arguments, output and metadata, plus the scalar names tool_name,
// session_id, stage, text and timestamp.
func (in *Input) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	root, rest := parts[0], parts[1:]

	switch root {
	case "arguments":
		return walk(in.Arguments, rest)
	case "output":
		return walk(in.Output, rest)
	case "metadata":
		return walk(in.Metadata, rest)
	}

	if len(rest) > 0 {
		return nil, false
	}
	switch root {
	case "tool_name":
		return in.ToolName, in.ToolName != ""
	case "session_id":
		return in.SessionID, in.SessionID != ""
	case "stage":
		return string(in.Stage), in.Stage != ""
	case "text":
		return in.Text, true
	case "timestamp":
		return in.Timestamp, !in.Timestamp.IsZero()
	}
	return nil, false
}

// locale picks the first non-empty tag.
func (in *Input) locale(conditionLocale string) string {
	switch {
	case conditionLocale != "":
		return conditionLocale
	case in.Locale != "":
		return in.Locale
	}
	return in.DefaultLocale
}
