package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var htmlPolicy = bluemonday.StrictPolicy()

// SanitizeString removes potentially dangerous characters
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Trim whitespace
	return strings.TrimSpace(input)
}

// SanitizeHTML removes all HTML tags
func SanitizeHTML(input string) string {
	return htmlPolicy.Sanitize(input)
}

// SanitizeMessage strips markup from chat content and returns plain text.
// Entities escaped by the policy are decoded again so "<3" survives as text.
func SanitizeMessage(input string) string {
	input = SanitizeString(input)
	if input == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(SanitizeHTML(input)))
}
