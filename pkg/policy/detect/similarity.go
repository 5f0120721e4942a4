package detect

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"mercator-hq/constitution/pkg/constitution/ast"
)

type similarityDetector struct {
	refs      []string
	sets      []map[string]struct{}
	threshold float64
}

func compileSimilarity(cond ast.Condition, _ *Registry) (Detector, error) {
	c := cond.(*ast.SimilarityCondition)
	if len(c.References) == 0 {
		return nil, fmt.Errorf("similarity condition has no references")
	}
	d := &similarityDetector{threshold: c.Threshold}
	if d.threshold <= 0 {
		d.threshold = ast.DefaultSimilarity
	}
	for _, ref := range c.References {
		d.refs = append(d.refs, Collapse(ref))
		d.sets = append(d.sets, wordSet(ref))
	}
	return d, nil
}

func (d *similarityDetector) Detect(_ context.Context, in *Input) MatchResult {
	words := wordSet(in.Normalized)
	best, at := 0.0, -1
	for i, ref := range d.sets {
		if score := jaccard(words, ref); score > best {
			best, at = score, i
		}
	}
	if at < 0 || best < d.threshold {
		return noMatch()
	}
	return MatchResult{
		Matched: true,
		Context: fmt.Sprintf("similarity %.2f to %q", best, truncate(d.refs[at], 50)),
	}
}

// wordSet splits case-folded text into its distinct words.
func wordSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
