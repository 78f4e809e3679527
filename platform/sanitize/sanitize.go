// Package sanitize provides text sanitization for user-provided form fields.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
	// script/style element bodies are payload, not text, and are removed
	// whole rather than leaving their content behind after tag-stripping.
	scriptStyleRegex = regexp.MustCompile(`(?is)<(?:script|style)\b[^>]*>.*?</(?:script|style)\s*>`)
)

// StripHTML removes all HTML markup from a string, making it safe for
// text-only display and email templates. Script and style elements are
// removed together with their content.
func StripHTML(s string) string {
	result := scriptStyleRegex.ReplaceAllString(s, "")
	result = htmlTagRegex.ReplaceAllString(result, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// Re-strip after entity decode to catch encoded markup
	result = scriptStyleRegex.ReplaceAllString(result, "")
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text sanitizes a user-provided text field (names, street addresses)
// before storage.
func Text(s string) string {
	return StripHTML(s)
}
