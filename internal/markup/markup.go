// Package markup converts the HTML subset used in replies for other outputs.
package markup

import (
	"html"
	"regexp"
	"strings"
)

// ANSI escape sequences used by Terminal.
const (
	ansiBold  = "\x1b[1m"
	ansiCyan  = "\x1b[36m"
	ansiReset = "\x1b[0m"
)

var (
	// tagRegex matches any opening or closing tag.
	tagRegex = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9-]*(\s[^<>]*)?/?>`)

	// brRegex matches line breaks written as tags.
	brRegex = regexp.MustCompile(`(?i)<br\s*/?>`)

	terminalTags = strings.NewReplacer(
		"<b>", ansiBold, "</b>", ansiReset,
		"<strong>", ansiBold, "</strong>", ansiReset,
		"<code>", ansiCyan, "</code>", ansiReset,
	)
)

// StripTags removes all tags from text, keeping their content.
func StripTags(text string) string {
	text = brRegex.ReplaceAllString(text, "\n")
	return tagRegex.ReplaceAllString(text, "")
}

// Plain renders text for transports without markup.
func Plain(text string) string {
	return strings.TrimSpace(html.UnescapeString(StripTags(text)))
}

// Terminal renders bold and code spans as ANSI styles and strips other tags.
func Terminal(text string) string {
	text = terminalTags.Replace(text)
	return strings.TrimSpace(html.UnescapeString(StripTags(text)))
}

