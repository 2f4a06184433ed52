package search

import (
	"strings"

	"golang.org/x/net/html"
)

// CleanSnippet reduces an HTML fragment to its visible text with collapsed
// whitespace. Script, style and similar elements are dropped.
func CleanSnippet(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var buf strings.Builder
	skip := 0
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(buf.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if skipped(string(name)) {
				skip++
			} else if block(string(name)) {
				buf.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skipped(string(name)) && skip > 0 {
				skip--
			} else if block(string(name)) {
				buf.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			buf.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				buf.Write(z.Text())
			}
		}
	}
}

func skipped(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "iframe", "template":
		return true
	}
	return false
}

func block(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "ul", "ol", "td", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "section", "article":
		return true
	}
	return false
}
