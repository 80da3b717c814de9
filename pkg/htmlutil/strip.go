package htmlutil

import (
	"html"
	"regexp"
	"strings"
)

// lineBreakPattern matches <br> tags in any of their self-closing spellings.
var lineBreakPattern = regexp.MustCompile(`(?i)<br\s*/?>`)

// tagPattern matches HTML tags including self-closing tags.
var tagPattern = regexp.MustCompile(`<[^>]+>`)

// whitespacePattern matches runs of consecutive whitespace characters.
var whitespacePattern = regexp.MustCompile(`\s+`)

// StripMarkup decodes HTML entities, converts line-break tags to newlines,
// strips all remaining tags, collapses consecutive whitespace to single
// spaces, and trims the result. It never fails; empty input yields "".
//
// Provider descriptions arrive with wildly inconsistent markup (Google Books
// embeds <b>/<i>/<br>, Open Library descriptions are usually plain text), so
// synopses are normalized through here before any language handling.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}

	s = html.UnescapeString(s)
	s = lineBreakPattern.ReplaceAllString(s, "\n")
	s = tagPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}
