// Package segment splits raw window-sticker text into discrete candidate
// feature statements.
//
// Two strategies exist: section-based segmentation keyed on equipment
// section headers, and a lower-precision pattern-based fallback (bullets,
// label/value shapes, equipment keywords). The fallback runs only when the
// section pass finds nothing at all; running both would double-count on
// stickers that have proper sections.
package segment

import (
	"regexp"
	"strings"
)

// Method records which strategy produced a statement.
type Method string

const (
	// MethodSection marks statements found inside a recognized equipment section.
	MethodSection Method = "section"
	// MethodPattern marks statements recovered by the pattern fallback.
	MethodPattern Method = "pattern"
)

// FeatureStatement is one candidate feature line before canonical mapping.
type FeatureStatement struct {
	Text       string
	SourceLine int
	Method     Method
}

// sectionHeaders open an equipment section. The header line itself is
// discarded; it names the section, it is not a feature.
var sectionHeaders = []string{
	"standard equipment",
	"factory installed options",
	"optional equipment",
	"included equipment",
	"features",
	"equipment",
	"packages",
}

// sectionTerminators close an equipment section when encountered inside one.
var sectionTerminators = []string{
	"warranty",
	"safety ratings",
	"fuel economy",
	"price",
	"msrp",
	"destination",
	"total",
}

// featureKeywords are equipment terms that rescue otherwise shapeless
// lines during the pattern fallback.
var featureKeywords = []string{
	"system", "package", "wheels", "seats", "audio", "climate", "control",
	"assist", "camera", "sensor", "navigation", "bluetooth", "usb", "heated",
	"cooled", "leather", "sunroof", "roof", "door", "window", "mirror", "light",
	"led", "automatic", "manual", "transmission", "engine", "cylinder", "turbo",
	"awd", "4wd", "fwd", "rwd", "drive", "brake", "safety", "airbag", "alarm",
	"lock", "key", "remote", "start", "stop", "cruise", "lane", "blind", "spot",
	"parking", "backup", "rear", "front", "side", "collision", "warning", "alert",
}

var (
	currencyPattern     = regexp.MustCompile(`\$\d+`)
	bulletPattern       = regexp.MustCompile(`^[\s\-•\*]+(.+)$`)
	labelValuePattern   = regexp.MustCompile(`^(.+?)[:\-](.+)$`)
	numericOnlyPattern  = regexp.MustCompile(`^[\d\s\-.]+$`)
	singleLetterPattern = regexp.MustCompile(`^[a-zA-Z]$`)
	leadingBullets      = regexp.MustCompile(`^[\s\-•\*]+`)
	trailingPunct       = regexp.MustCompile(`[.,;:]+$`)
	innerWhitespace     = regexp.MustCompile(`\s+`)
)

const minStatementLen = 3

// Segment splits text into an ordered, deduplicated sequence of feature
// statements. Lines are normalized individually; line structure drives
// segmentation.
func Segment(text string) []FeatureStatement {
	lines := strings.Split(text, "\n")

	statements := segmentBySection(lines)
	if len(statements) == 0 {
		statements = segmentByPattern(lines)
	}

	return postProcess(statements)
}

// segmentBySection walks lines with an in-section flag toggled by header
// and terminator phrases. Price lines and fragments are dropped.
func segmentBySection(lines []string) []FeatureStatement {
	var out []FeatureStatement
	inFeatureSection := false

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)

		if containsAny(lower, sectionHeaders) {
			inFeatureSection = true
			continue
		}
		if inFeatureSection && containsAny(lower, sectionTerminators) {
			inFeatureSection = false
			continue
		}
		if !inFeatureSection {
			continue
		}
		if currencyPattern.MatchString(line) {
			continue
		}
		if len(line) < minStatementLen {
			continue
		}

		out = append(out, FeatureStatement{Text: line, SourceLine: i + 1, Method: MethodSection})
	}

	return out
}

// segmentByPattern recovers statements from stickers without recognizable
// sections: bullets first, then label/value shapes, then keyword lines.
func segmentByPattern(lines []string) []FeatureStatement {
	var out []FeatureStatement

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			if text := strings.TrimSpace(m[1]); text != "" {
				out = append(out, FeatureStatement{Text: text, SourceLine: i + 1, Method: MethodPattern})
			}
			continue
		}

		if m := labelValuePattern.FindStringSubmatch(line); m != nil {
			label := strings.TrimSpace(m[1])
			value := strings.TrimSpace(m[2])
			if len(label) < minStatementLen {
				continue
			}
			text := label + ": " + value
			if numericOnlyPattern.MatchString(value) {
				text = label
			}
			out = append(out, FeatureStatement{Text: text, SourceLine: i + 1, Method: MethodPattern})
			continue
		}

		if containsAny(strings.ToLower(line), featureKeywords) {
			out = append(out, FeatureStatement{Text: line, SourceLine: i + 1, Method: MethodPattern})
		}
	}

	return out
}

// postProcess cleans each retained statement, drops noise, and
// deduplicates preserving first-seen order.
func postProcess(statements []FeatureStatement) []FeatureStatement {
	seen := make(map[string]bool, len(statements))
	out := make([]FeatureStatement, 0, len(statements))

	for _, stmt := range statements {
		cleaned := Clean(stmt.Text)
		if len(cleaned) < minStatementLen {
			continue
		}
		if numericOnlyPattern.MatchString(cleaned) {
			continue
		}
		if singleLetterPattern.MatchString(cleaned) {
			continue
		}
		if seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		stmt.Text = cleaned
		out = append(out, stmt)
	}

	return out
}

// Clean strips bullet markers and trailing punctuation and collapses
// internal whitespace.
func Clean(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = leadingBullets.ReplaceAllString(cleaned, "")
	cleaned = trailingPunct.ReplaceAllString(cleaned, "")
	cleaned = innerWhitespace.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
