package parser

import (
	"regexp"
	"strings"
)

// LegacyRuleID is the id of the single rule produced from free text.
const LegacyRuleID = "legacy-advisory"

// maxPhraseWords bounds extracted directive phrases so a run-on sentence
// does not become an unmatchable keyword.
const maxPhraseWords = 8

var (
	quotedRe    = regexp.MustCompile(`["“]([^"”\n]{2,})["”]`)
	directiveRe = regexp.MustCompile(`(?i)\b(?:never|must not|do not|don't|should not|avoid|forbid(?:den)?|prohibit(?:ed)?)\s+([^.;:!?\n"“”]+)`)
	fillerRe    = regexp.MustCompile(`(?i)^(?:ever\s+|to\s+|any\s+|be\s+)+`)
)

// ExtractPhrases pulls prohibited phrases out of free text: every quoted
// phrase, and the words following a negative directive up to the next
// punctuation. Phrases are lower-cased and deduplicated in order of appearance.
func ExtractPhrases(text string) []string {
	seen := make(map[string]bool)
	var phrases []string

	add := func(p string) {
		p = strings.ToLower(strings.Join(strings.Fields(p), " "))
		p = strings.Trim(p, ",'` ")
		if len(p) < 2 || seen[p] {
			return
		}
		seen[p] = true
		phrases = append(phrases, p)
	}

	for _, m := range quotedRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}

	for _, m := range directiveRe.FindAllStringSubmatch(text, -1) {
		phrase := fillerRe.ReplaceAllString(strings.TrimSpace(m[1]), "")
		words := strings.Fields(phrase)
		if len(words) > maxPhraseWords {
			words = words[:maxPhraseWords]
		}
		add(strings.Join(words, " "))
	}

	return phrases
}
