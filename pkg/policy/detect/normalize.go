package detect

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKC so compatibility forms (full-width letters,
// ligatures, non-breaking spaces) match their plain equivalents.
func Normalize(s string) string {
	return norm.NFKC.String(s)
}

// Collapse replaces every run of whitespace with a single space.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Fold returns the case-folded form of s for caseless comparison.
// A Caser is stateful, so one is created per call.
func Fold(s string) string {
	return cases.Fold().String(Normalize(s))
}

// phraseRegexp compiles a literal phrase into an expression over folded
// text that tolerates any whitespace between its words.
func phraseRegexp(phrase string) (*regexp.Regexp, error) {
	words := strings.Fields(Fold(phrase))
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.Compile(`(?i)` + strings.Join(quoted, `\s+`))
}

// Offsets maps byte offsets in a derived form of a string, its NFKC or
// case-folded form, back to the original. Boundaries fall between the
// original characters, so a mapped span always covers whole characters.
type Offsets struct {
	normalized string
	norm, orig []int
}

// NormalizeOffsets normalizes s like Normalize and records segment
// boundaries.
func NormalizeOffsets(s string) *Offsets {
	o := &Offsets{}
	var sb strings.Builder
	var it norm.Iter
	it.InitString(norm.NFKC, s)
	for !it.Done() {
		o.norm = append(o.norm, sb.Len())
		o.orig = append(o.orig, it.Pos())
		sb.Write(it.Next())
	}
	o.norm = append(o.norm, sb.Len())
	o.orig = append(o.orig, len(s))
	o.normalized = sb.String()
	return o
}

// foldOffsets case-folds s rune by rune, so "ß" becomes "ss" while spans
// still map back to s.
func foldOffsets(s string) *Offsets {
	o := &Offsets{}
	caser := cases.Fold()
	var sb strings.Builder
	for i, r := range s {
		o.norm = append(o.norm, sb.Len())
		o.orig = append(o.orig, i)
		sb.WriteString(caser.String(string(r)))
	}
	o.norm = append(o.norm, sb.Len())
	o.orig = append(o.orig, len(s))
	o.normalized = sb.String()
	return o
}

// Normalized returns the derived string the offsets refer to.
func (o *Offsets) Normalized() string { return o.normalized }

// Original maps a span of the normalized string to the smallest span of
// the original that covers it.
func (o *Offsets) Original(sp Span) Span {
	// last boundary at or before Start
	i := sort.SearchInts(o.norm, sp.Start+1) - 1
	if i < 0 {
		i = 0
	}
	// first boundary at or after End
	j := sort.SearchInts(o.norm, sp.End)
	if j >= len(o.orig) {
		j = len(o.orig) - 1
	}
	return Span{Start: o.orig[i], End: o.orig[j]}
}
