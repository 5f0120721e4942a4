package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode/utf8"
)

// MaxHashSize bounds the bytes hashed from one payload.
const MaxHashSize = 1024 * 1024

// HashString returns the hex SHA-256 of s, or "" for an empty string. Only
// the first MaxHashSize bytes are hashed.
func HashString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > MaxHashSize {
		s = s[:MaxHashSize]
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Preview truncates s to at most maxLen bytes on a rune boundary, appending
// "..." when it cut.
func Preview(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return ""
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
