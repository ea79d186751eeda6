package adapter

import (
	"html"
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// extractText turns a posting body into one line of plain text. Boards send
// HTML, HTML-escaped HTML (Greenhouse) or plain text; entities are decoded
// first so escaped markup becomes tags, and each tag becomes a space so
// adjacent paragraphs don't run together.
func extractText(body string) string {
	if body == "" {
		return ""
	}
	decoded := html.UnescapeString(body)
	return strings.Join(strings.Fields(tagPattern.ReplaceAllString(decoded, " ")), " ")
}
