package errors

import (
	"fmt"
	"strings"
)

// SuggestValue proposes the closest valid value for an unknown enum value.
func SuggestValue(unknown string, valid []string) string {
	if len(valid) == 0 {
		return ""
	}

	best, bestDist := "", 1<<30
	for _, v := range valid {
		if d := levenshtein(strings.ToLower(unknown), v); d < bestDist {
			best, bestDist = v, d
		}
	}

	if bestDist <= 3 {
		return fmt.Sprintf("did you mean %q?", best)
	}
	return fmt.Sprintf("valid values: %s", strings.Join(valid, ", "))
}

// SuggestMissingField proposes adding a required field.
func SuggestMissingField(field, example string) string {
	if example != "" {
		return fmt.Sprintf("add '%s: %s'", field, example)
	}
	return fmt.Sprintf("add '%s'", field)
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
