// Package normalize provides the shared text normalization used for all
// vocabulary and checklist label comparisons. Every comparison in the
// pipeline must normalize both sides with the same function, otherwise
// exact-match lookups silently stop firing.
package normalize

import (
	"regexp"
	"strings"
)

var (
	lineBreaks = regexp.MustCompile(`[\n\t\r]+`)
	multiSpace = regexp.MustCompile(`\s+`)
)

// Text lowercases the input, folds newlines and tabs into spaces, and
// collapses runs of whitespace into a single space.
func Text(s string) string {
	if s == "" {
		return ""
	}
	out := strings.ToLower(s)
	out = lineBreaks.ReplaceAllString(out, " ")
	out = multiSpace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
