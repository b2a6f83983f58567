package helpers

import (
	"html"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy returns a singleton bluemonday policy that strips every HTML
// element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// StripHTML turns an HTML fragment into plain text: tags removed, entities
// decoded and whitespace collapsed to single spaces.
func StripHTML(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	// bluemonday drops the element but keeps adjacent text glued together
	s = strings.ReplaceAll(s, "<", " <")
	text := html.UnescapeString(StrictHTMLPolicy().Sanitize(s))
	return CollapseWhitespace(text)
}

// CollapseWhitespace replaces every run of whitespace with one space and trims.
func CollapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Truncate cuts s to at most max runes. It never splits a rune.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// TruncateEllipsis is Truncate that appends "..." when something was cut.
func TruncateEllipsis(s string, max int) string {
	out := Truncate(s, max)
	if len(out) < len(s) {
		return out + "..."
	}
	return out
}
