package resource

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

// SummaryLength is the maximum summary length in runes, before the ellipsis.
const SummaryLength = 400

var (
	htmlTitle     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlNoise     = regexp.MustCompile(`(?is)<(script|style|head)\b[^>]*>.*?</(script|style|head)>|<!--.*?-->`)
	htmlTag       = regexp.MustCompile(`(?s)<[^>]+>`)
	mdFrontmatter = regexp.MustCompile(`(?s)\A---\n.*?\n---\n`)
	mdHeading     = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*#*\s*$`)
	mdImage       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink        = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdMarkup      = regexp.MustCompile("(?m)^\\s{0,3}(#{1,6}|>|[-*+]|\\d+\\.)\\s+|[*`~]{1,3}")
)

// htmlText returns the page title and its visible text.
func htmlText(src string) (title, body string) {
	if m := htmlTitle.FindStringSubmatch(src); m != nil {
		title = collapse(html.UnescapeString(htmlTag.ReplaceAllString(m[1], " ")))
	}
	body = htmlNoise.ReplaceAllString(src, " ")
	body = htmlTag.ReplaceAllString(body, " ")
	return title, collapse(html.UnescapeString(body))
}

// markdownText returns the first heading and the text with markup removed.
func markdownText(src string) (title, body string) {
	src = mdFrontmatter.ReplaceAllString(src, "")
	if m := mdHeading.FindStringSubmatch(src); m != nil {
		title = strings.TrimSpace(m[1])
	}
	body = mdImage.ReplaceAllString(src, "$1")
	body = mdLink.ReplaceAllString(body, "$1")
	body = mdMarkup.ReplaceAllString(body, "")
	return title, collapse(body)
}

// collapse joins all whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Summarize cuts text to at most max runes at a word boundary and marks the cut with "...".
func Summarize(text string, max int) string {
	text = collapse(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	cut := string(runes[:max])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, unicode.IsPunct) + "..."
}
