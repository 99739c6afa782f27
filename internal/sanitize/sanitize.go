package sanitize

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// Text strips all markup from free-form input, keeping plain text and emoji.
// Script and style elements are removed together with their contents. The
// result is unescaped back to plain text since it is stored and re-encoded as
// JSON, never rendered as HTML.
func Text(input string) string {
	return html.UnescapeString(policy.Sanitize(input))
}

// Truncate limits s to max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Message sanitizes and then truncates a chat message body.
func Message(input string, maxLen int) string {
	return Truncate(Text(input), maxLen)
}
