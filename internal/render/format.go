package render

import (
	"regexp"
	"strings"
)

var (
	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	)
	// Links stop at whitespace; escaped text can't contain raw < or >.
	linkPattern   = regexp.MustCompile(`https?://[^\s]+`)
	strongPattern = regexp.MustCompile(`\*([^*]*?)\*`)
	emPattern     = regexp.MustCompile(`_([^_]*?)_`)
)

// FormatMessage turns plain message text into safe HTML.
//
// Grammar, applied in order:
//  1. escape & < > " ' so the text can't inject markup
//  2. http(s) URLs up to the next whitespace become anchors
//  3. *x* becomes <strong>x</strong>
//  4. _x_ becomes <em>x</em>
//
// Emphasis is applied only to the text between links, so URLs containing
// * or _ stay intact. Every input has exactly one output.
func FormatMessage(text string) string {
	escaped := htmlEscaper.Replace(text)

	var out strings.Builder
	last := 0
	for _, loc := range linkPattern.FindAllStringIndex(escaped, -1) {
		out.WriteString(emphasize(escaped[last:loc[0]]))
		url := escaped[loc[0]:loc[1]]
		out.WriteString(`<a href="`)
		out.WriteString(url)
		out.WriteString(`" target="_blank" rel="noopener">`)
		out.WriteString(url)
		out.WriteString(`</a>`)
		last = loc[1]
	}
	out.WriteString(emphasize(escaped[last:]))
	return out.String()
}

func emphasize(s string) string {
	s = strongPattern.ReplaceAllString(s, "<strong>$1</strong>")
	return emPattern.ReplaceAllString(s, "<em>$1</em>")
}
