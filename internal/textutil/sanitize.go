package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SanitizeStem keeps letters, digits, spaces, hyphens and underscores from a
// filename stem and truncates the result to maxRunes. Text is NFC-normalized
// first so decomposed accents from macOS uploads survive as single letters.
func SanitizeStem(stem string, maxRunes int) string {
	stem = norm.NFC.String(stem)
	var b strings.Builder
	count := 0
	for _, r := range stem {
		if maxRunes > 0 && count >= maxRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
			count++
		}
	}
	return strings.TrimSpace(b.String())
}

// SanitizeToken converts a string to a filesystem-safe path segment.
// Letters (including accented ones) and digits are kept, hyphens and
// underscores pass through, everything else collapses to an underscore.
// Returns fallback for empty input.
func SanitizeToken(value, fallback string) string {
	value = norm.NFC.String(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return fallback
	}
	return out
}
