package detect

import (
	"context"
	"fmt"
	"regexp"

	"mercator-hq/constitution/pkg/constitution/ast"
)

type patternDetector struct {
	re      *regexp.Regexp
	pattern string
	require bool
}

func compilePattern(cond ast.Condition, _ *Registry) (Detector, error) {
	c := cond.(*ast.PatternCondition)
	re, err := regexp.Compile(`(?i)` + c.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return &patternDetector{re: re, pattern: c.Pattern, require: c.Mode == ast.PatternRequire}, nil
}

func (d *patternDetector) Detect(_ context.Context, in *Input) MatchResult {
	// Empty matches of patterns like `\d*` are not occurrences.
	var spans []Span
	for _, l := range d.re.FindAllStringIndex(in.Normalized, -1) {
		if l[1] > l[0] {
			spans = append(spans, Span{Start: l[0], End: l[1]})
		}
	}

	if d.require {
		if len(spans) == 0 {
			return MatchResult{Matched: true, Context: "required pattern absent: " + d.pattern}
		}
		return noMatch()
	}

	if len(spans) == 0 {
		return noMatch()
	}
	return MatchResult{
		Matched: true,
		Context: Collapse(in.Normalized[spans[0].Start:spans[0].End]),
		Spans:   spans,
	}
}
