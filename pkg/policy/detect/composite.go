package detect

import (
	"context"
	"fmt"
	"strings"

	"mercator-hq/constitution/pkg/constitution/ast"
)

// Composites compile their children through Compile, so they cannot sit in
// the kinds literal.
func init() {
	kinds[ast.KindAll] = compileComposite
	kinds[ast.KindAny] = compileComposite
}

type compositeDetector struct {
	all  bool
	subs []Detector
}

func compileComposite(cond ast.Condition, preds *Registry) (Detector, error) {
	c := cond.(*ast.CompositeCondition)
	if len(c.Conditions) == 0 {
		return nil, fmt.Errorf("%s condition has no conditions", c.Op)
	}
	d := &compositeDetector{all: c.Op == ast.KindAll}
	for i, sub := range c.Conditions {
		sd, err := Compile(sub, preds)
		if err != nil {
			return nil, fmt.Errorf("%s condition %d: %w", c.Op, i, err)
		}
		d.subs = append(d.subs, sd)
	}
	return d, nil
}

// Detect follows three-valued logic: a sub-condition that could not be
// decided only surfaces its diagnostic when the others do not settle the
// result.
func (d *compositeDetector) Detect(ctx context.Context, in *Input) MatchResult {
	var (
		contexts []string
		spans    []Span
		diag     *Diagnostic
	)
	for _, sd := range d.subs {
		m := sd.Detect(ctx, in)
		switch {
		case m.Diagnostic != nil:
			if diag == nil {
				diag = m.Diagnostic
			}
		case m.Matched:
			if !d.all {
				return m
			}
			contexts = append(contexts, m.Context)
			spans = append(spans, m.Spans...)
		case d.all:
			return noMatch()
		}
	}

	if diag != nil {
		return MatchResult{Diagnostic: diag}
	}
	if !d.all {
		return noMatch()
	}
	return MatchResult{Matched: true, Context: strings.Join(contexts, "; "), Spans: spans}
}
