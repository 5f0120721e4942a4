package detect

import (
	"context"
	"fmt"
	"time"

	"mercator-hq/constitution/pkg/constitution/ast"
)

type thresholdDetector struct {
	cond   *ast.ThresholdCondition
	number float64
	date   time.Time
}

func compileThreshold(cond ast.Condition, _ *Registry) (Detector, error) {
	c := cond.(*ast.ThresholdCondition)
	d := &thresholdDetector{cond: c}

	var err error
	switch c.ValueKind {
	case ast.ValueDate:
		d.date, err = ParseDate(c.Threshold, c.Locale)
	default:
		d.number, err = ParseNumber(c.Threshold, "en")
	}
	if err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}
	if _, known := comparators[c.Comparator]; !known {
		return nil, fmt.Errorf("unknown comparator %q", c.Comparator)
	}
	return d, nil
}

// comparators map a comparator to a predicate over the sign of
// (value - threshold).
var comparators = map[ast.Comparator]func(sign int) bool{
	ast.CompareGT:  func(s int) bool { return s > 0 },
	ast.CompareGTE: func(s int) bool { return s >= 0 },
	ast.CompareLT:  func(s int) bool { return s < 0 },
	ast.CompareLTE: func(s int) bool { return s <= 0 },
	ast.CompareEQ:  func(s int) bool { return s == 0 },
	ast.CompareNE:  func(s int) bool { return s != 0 },
}

func (d *thresholdDetector) Detect(_ context.Context, in *Input) MatchResult {
	c := d.cond
	raw, ok := in.Lookup(c.Field)
	if !ok || raw == nil {
		if c.Required {
			return MatchResult{Matched: true, Context: fmt.Sprintf("required field %s is missing", c.Field)}
		}
		return noMatch()
	}

	locale := in.locale(c.Locale)
	var sign int

	switch c.ValueKind {
	case ast.ValueDate:
		t, err := ParseDate(raw, locale)
		if err != nil {
			return mismatch("field %s: %v", c.Field, err)
		}
		sign = t.Compare(d.date)
		if comparators[c.Comparator](sign) {
			return MatchResult{Matched: true, Context: fmt.Sprintf("%s=%s", c.Field, t.Format(time.RFC3339))}
		}
	default:
		n, err := ParseNumber(raw, locale)
		if err != nil {
			return mismatch("field %s: %v", c.Field, err)
		}
		switch {
		case n > d.number:
			sign = 1
		case n < d.number:
			sign = -1
		}
		if comparators[c.Comparator](sign) {
			return MatchResult{Matched: true, Context: fmt.Sprintf("%s=%v", c.Field, n)}
		}
	}
	return noMatch()
}
