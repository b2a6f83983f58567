// Package normalize maps source-native RawItems onto the canonical Article.
package normalize

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mohammad-safakhou/newslens/internal/helpers"
	"github.com/mohammad-safakhou/newslens/models"
	"github.com/mohammad-safakhou/newslens/news"
)

// timeLayouts are tried in order for string timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// Normalizer holds the text limits. It has no other state.
type Normalizer struct {
	MaxContentLength int
	MinContentLength int
}

// New returns a Normalizer with the given limits.
func New(maxContentLength, minContentLength int) Normalizer {
	return Normalizer{MaxContentLength: maxContentLength, MinContentLength: minContentLength}
}

// Normalize converts item into a draft Article (no sentiment, no bias). ok is
// false when the item cannot be attributed to a known source.
func (n Normalizer) Normalize(item news.RawItem) (models.Article, bool) {
	url := strings.TrimSpace(item.URL)
	if url == "" {
		return models.Article{}, false
	}
	source, ok := resolveSource(item)
	if !ok {
		return models.Article{}, false
	}
	caps, _ := models.Capabilities(source)

	a := models.Article{
		URL:         url,
		Source:      source,
		Title:       helpers.StripHTML(item.Title),
		Content:     n.cleanText(item.Text),
		Author:      strings.TrimSpace(item.Author),
		PublishedAt: publishedAt(item),
	}
	if caps.HasEngagement {
		a.Engagement = models.Engagement{
			Likes:     item.Likes,
			Score:     item.Score,
			Comments:  item.Comments,
			Replies:   item.Replies,
			Reposts:   item.Reposts,
			Quotes:    item.Quotes,
			Subreddit: item.Subreddit,
			Handle:    item.Handle,
		}
		a = a.Clone()
	}
	return a, true
}

// NeedsFullText reports whether a news article's content is too short to
// classify on its own.
func (n Normalizer) NeedsFullText(a models.Article) bool {
	if !models.IsNewsOutlet(a.Source) {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(a.Content)) < n.MinContentLength
}

// CleanText applies the same markup stripping and truncation as Normalize.
func (n Normalizer) CleanText(s string) string { return n.cleanText(s) }

func (n Normalizer) cleanText(s string) string {
	text := stripTruncationMarker(helpers.StripHTML(s))
	if n.MaxContentLength > 0 {
		text = helpers.Truncate(text, n.MaxContentLength)
	}
	return text
}

// stripTruncationMarker drops NewsAPI's trailing "[+1234 chars]".
func stripTruncationMarker(s string) string {
	if !strings.HasSuffix(s, "chars]") {
		return s
	}
	i := strings.LastIndex(s, "[+")
	if i < 0 {
		return s
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s[:i]), "…"))
}

func resolveSource(item news.RawItem) (models.SourceName, bool) {
	switch item.Source {
	case models.SourceReddit, models.SourceBluesky:
		return item.Source, true
	}
	// News items are attributed by url, never by the upstream's label.
	if o, ok := news.MatchOutlet(item.URL); ok {
		return o.Name, true
	}
	return "", false
}

func publishedAt(item news.RawItem) int64 {
	if item.CreatedUnix > 0 {
		return int64(math.Floor(item.CreatedUnix))
	}
	return ParseTimestamp(item.PublishedAt)
}

// ParseTimestamp converts a source timestamp string to epoch seconds. It
// returns 0 when the value is empty or unparseable.
func ParseTimestamp(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}
