// Package textproc applies light punctuation and casing to raw transcripts.
// It never adds, removes, or respells words.
package textproc

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func isTerminal(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}

// AutoPunctuate capitalizes the first letter and any letter following
// terminal punctuation, and appends a period when the transcript does not
// already end with one. Disabled, it is the identity function.
func AutoPunctuate(text string, enabled bool) string {
	if !enabled {
		return text
	}
	t := strings.TrimSpace(text)
	if t == "" {
		return t
	}

	var b strings.Builder
	b.Grow(len(t) + 1)
	capitalizeNext := true
	for _, r := range t {
		if capitalizeNext && unicode.IsLetter(r) {
			r = unicode.ToUpper(r)
			capitalizeNext = false
		}
		if isTerminal(r) {
			capitalizeNext = true
		}
		b.WriteRune(r)
	}

	out := b.String()
	last, _ := utf8.DecodeLastRuneInString(out)
	if !isTerminal(last) {
		out += "."
	}
	return out
}
