package detect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"mercator-hq/constitution/pkg/constitution/ast"
)

type keywordDetector struct {
	keywords []string
	res      []*regexp.Regexp
	match    ast.KeywordMatch
}

func compileKeyword(cond ast.Condition, _ *Registry) (Detector, error) {
	c := cond.(*ast.KeywordCondition)
	if len(c.Keywords) == 0 {
		return nil, fmt.Errorf("keyword condition has no keywords")
	}

	d := &keywordDetector{match: c.Match}
	if d.match == "" {
		d.match = ast.MatchAny
	}
	for _, kw := range c.Keywords {
		re, err := phraseRegexp(kw)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", kw, err)
		}
		d.keywords = append(d.keywords, Collapse(kw))
		d.res = append(d.res, re)
	}
	return d, nil
}

func (d *keywordDetector) Detect(_ context.Context, in *Input) MatchResult {
	var (
		spans   []Span
		first   string
		found   int
		missing []string
	)

	folded := in.Folded()
	for i, re := range d.res {
		locs := re.FindAllStringIndex(folded.Normalized(), -1)
		if len(locs) == 0 {
			missing = append(missing, d.keywords[i])
			continue
		}
		found++
		for _, l := range locs {
			sp := folded.Original(Span{Start: l[0], End: l[1]})
			if first == "" {
				first = Collapse(in.Normalized[sp.Start:sp.End])
			}
			spans = append(spans, sp)
		}
	}

	switch d.match {
	case ast.MatchAll:
		if found == len(d.res) {
			return MatchResult{Matched: true, Context: first, Spans: spans}
		}
	case ast.MatchNone:
		if found == 0 {
			return MatchResult{Matched: true, Context: "missing required wording: " + strings.Join(missing, ", ")}
		}
	default:
		if found > 0 {
			return MatchResult{Matched: true, Context: first, Spans: spans}
		}
	}
	return noMatch()
}
