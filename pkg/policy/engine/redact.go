package engine

import (
	"context"
	"sort"
	"strings"

	"mercator-hq/constitution/pkg/constitution/ast"
	"mercator-hq/constitution/pkg/policy/detect"
	"mercator-hq/constitution/pkg/policy/evaluator"
)

// mergeSpans sorts spans and merges overlapping or adjacent ones.
func mergeSpans(spans []detect.Span) []detect.Span {
	if len(spans) == 0 {
		return nil
	}
	sorted := make([]detect.Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var merged []detect.Span
	for _, s := range sorted {
		if s.End <= s.Start {
			continue
		}
		if len(merged) == 0 {
			merged = append(merged, s)
			continue
		}
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// applySpans replaces every span of text with placeholder.
func applySpans(text string, spans []detect.Span, placeholder string) string {
	var sb strings.Builder
	prev := 0
	for _, s := range mergeSpans(spans) {
		if s.Start < prev || s.End > len(text) {
			continue
		}
		sb.WriteString(text[prev:s.Start])
		sb.WriteString(placeholder)
		prev = s.End
	}
	sb.WriteString(text[prev:])
	return sb.String()
}

// redactOriginal replaces spans of Normalize(text) in text itself, so
// characters outside the spans keep their original form.
func redactOriginal(text string, spans []detect.Span, placeholder string) string {
	offsets := detect.NormalizeOffsets(text)
	mapped := make([]detect.Span, 0, len(spans))
	for _, sp := range spans {
		if sp.End > sp.Start {
			mapped = append(mapped, offsets.Original(sp))
		}
	}
	return applySpans(text, mapped, placeholder)
}

// sanitize redacts the spans of every redact violation and rescans the
// result with the same rules until nothing matches. It reports false when
// residual matches survive the configured number of passes.
func (e *Engine) sanitize(ctx context.Context, rs *evaluator.RuleSet, in *detect.Input, violations []Violation) (string, bool) {
	var (
		spans []detect.Span
		ids   []string
	)
	for _, v := range violations {
		if v.Action != ast.ActionRedact {
			continue
		}
		ids = append(ids, v.RuleID)
		spans = append(spans, v.Spans...)
	}

	text := redactOriginal(in.Text, spans, e.cfg.RedactionPlaceholder)

	for pass := 0; pass < e.cfg.MaxRedactionPasses; pass++ {
		rescanned := detect.Prepare(&detect.Context{
			Stage:     in.Stage,
			Text:      text,
			ToolName:  in.ToolName,
			SessionID: in.SessionID,
			Timestamp: in.Timestamp,
			Locale:    in.Locale,
			Arguments: in.Arguments,
			Output:    in.Output,
			Metadata:  in.Metadata,
		}, in.DefaultLocale)

		var residual []detect.Span
		for _, id := range ids {
			m := rs.Rescan(ctx, id, rescanned)
			if m.Matched {
				residual = append(residual, m.Spans...)
			}
		}
		if len(residual) == 0 {
			return text, true
		}
		text = redactOriginal(text, residual, e.cfg.RedactionPlaceholder)
	}

	return "", false
}
