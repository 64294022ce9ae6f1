// Package textx provides small text utilities shared across the project.
package textx

import (
	"strings"
)

// SanitizeText removes control characters except tab/newline/CR and trims
// surrounding whitespace. Feed payloads occasionally smuggle NULs and other
// control bytes into titles and descriptions.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// CollapseSpaces folds every whitespace run into a single space and trims
// the ends.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
