package textutil

import (
	"strings"
	"unicode"
)

// componentReplacer maps characters that are invalid in a path component on
// common file systems to underscores.
var componentReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	"\"", "_",
	"/", "_",
	"\\", "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// SanitizeComponent makes value safe as a single path component: invalid
// characters become underscores, control characters are dropped, whitespace
// runs collapse to one space, and leading/trailing spaces and trailing dots
// are trimmed. Returns fallback when nothing usable remains.
func SanitizeComponent(value, fallback string) string {
	value = componentReplacer.Replace(value)
	var b strings.Builder
	b.Grow(len(value))
	space := false
	for _, r := range value {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := strings.TrimRight(b.String(), ". ")
	if out == "" || out == "." || out == ".." {
		return fallback
	}
	return out
}

// CollapseSpaces trims value and collapses internal whitespace runs.
func CollapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
