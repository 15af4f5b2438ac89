// Package sanitize cleans free-form submission parameter values.
//
// Parameter files are hand-edited, often on Windows desktops, so values may carry:
//   - Windows/Mac line endings
//   - Invisible Unicode characters (zero-width spaces, BOM, ...)
//   - Runs of whitespace
//
// Project codes additionally become folder names and job names, so characters
// that are unsafe there are replaced with underscores.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	projectCodeChars = regexp.MustCompile("[\\.\\/\\\\ &^*%#@!?~`{}\\[\\]+=<>|]")
	blanks           = regexp.MustCompile(`[ \t]+`)
	newlines         = regexp.MustCompile(`\n+`)
)

// ProjectCode replaces every character that is unsafe in folder and job names
// (. / \ space & ^ * % # @ ! ? ~ ` { } [ ] + = < > |) with an underscore.
func ProjectCode(code string) string {
	return projectCodeChars.ReplaceAllString(SanitizeField(code), "_")
}

// Text normalizes a free-text value such as a run description.
func Text(s string) string {
	if s == "" {
		return s
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = removeInvisibleChars(s)
	s = blanks.ReplaceAllString(s, " ")
	s = newlines.ReplaceAllString(s, "\n")

	return strings.TrimSpace(s)
}

// removeInvisibleChars removes zero-width and other invisible Unicode characters
func removeInvisibleChars(s string) string {
	invisibleChars := []string{
		"\u200B", // Zero-width space
		"\u200C", // Zero-width non-joiner
		"\u200D", // Zero-width joiner
		"\uFEFF", // Zero-width no-break space (BOM)
		"\u00AD", // Soft hyphen
		"\u2060", // Word joiner
		"\u180E", // Mongolian vowel separator
	}

	for _, char := range invisibleChars {
		s = strings.ReplaceAll(s, char, "")
	}

	return s
}

// SanitizeField strips invisible characters and surrounding whitespace.
func SanitizeField(field string) string {
	if field == "" {
		return field
	}
	return strings.TrimSpace(removeInvisibleChars(field))
}
