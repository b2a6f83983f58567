package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session id is unknown to the cache
	ErrSessionNotFound = errors.New("session not found")
	// ErrArticleNotFound is returned when a url is not cached under a session
	ErrArticleNotFound = errors.New("article not found")
)

// SourceName identifies where an article came from: one of the fixed news
// outlets or one of the social platforms.
type SourceName string

const (
	SourceCNN       SourceName = "CNN"
	SourceCBS       SourceName = "CBS News"
	SourceNBC       SourceName = "NBC News"
	SourceABC       SourceName = "ABC News"
	SourceFox       SourceName = "Fox News"
	SourceBreitbart SourceName = "Breitbart"
	SourceNYPost    SourceName = "NY Post"
	SourceOANN      SourceName = "OANN"

	SourceReddit  SourceName = "Reddit"
	SourceBluesky SourceName = "Bluesky"

	// SourceNewsAPI names the news-search adapter itself. Articles never carry it;
	// they carry the outlet resolved from the url.
	SourceNewsAPI SourceName = "NewsAPI"
)

// BiasLabel is the editorial lean assigned to a news-outlet article.
type BiasLabel string

const (
	BiasLeft      BiasLabel = "left"
	BiasLeanLeft  BiasLabel = "lean-left"
	BiasCenter    BiasLabel = "center"
	BiasLeanRight BiasLabel = "lean-right"
	BiasRight     BiasLabel = "right"
	BiasUnrated   BiasLabel = "unrated"
)

var biasLabels = []BiasLabel{BiasLeft, BiasLeanLeft, BiasCenter, BiasLeanRight, BiasRight, BiasUnrated}

// BiasLabels returns the fixed label set in display order.
func BiasLabels() []BiasLabel {
	out := make([]BiasLabel, len(biasLabels))
	copy(out, biasLabels)
	return out
}

// ParseBiasLabel maps free text (for example a model answer) onto the label set.
func ParseBiasLabel(s string) (BiasLabel, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.Trim(v, ".\"'`* ")
	v = strings.ReplaceAll(v, " ", "-")
	v = strings.ReplaceAll(v, "_", "-")
	for _, l := range biasLabels {
		if v == string(l) {
			return l, true
		}
	}
	switch v {
	case "centre", "neutral":
		return BiasCenter, true
	case "leans-left", "center-left", "centre-left":
		return BiasLeanLeft, true
	case "leans-right", "center-right", "centre-right":
		return BiasLeanRight, true
	}
	return "", false
}

// IsLeft reports whether the label falls on the left side of the spectrum.
func (b BiasLabel) IsLeft() bool { return b == BiasLeft || b == BiasLeanLeft }

// IsRight reports whether the label falls on the right side of the spectrum.
func (b BiasLabel) IsRight() bool { return b == BiasRight || b == BiasLeanRight }

// SentimentLabel is the categorical form of a sentiment score.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Session scopes every cached article.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Engagement holds the optional platform metrics. Which fields apply is
// decided by Capabilities, never by the presence of a value.
type Engagement struct {
	Likes     *int   `json:"likes,omitempty"`
	Score     *int   `json:"score,omitempty"`
	Comments  *int   `json:"comments,omitempty"`
	Replies   *int   `json:"replies,omitempty"`
	Reposts   *int   `json:"reposts,omitempty"`
	Quotes    *int   `json:"quotes,omitempty"`
	Subreddit string `json:"subreddit,omitempty"`
	Handle    string `json:"handle,omitempty"`
}

// IsZero reports whether no engagement metric is set.
func (e Engagement) IsZero() bool {
	return e.Likes == nil && e.Score == nil && e.Comments == nil && e.Replies == nil &&
		e.Reposts == nil && e.Quotes == nil && e.Subreddit == "" && e.Handle == ""
}

// Article is the canonical, normalized record cached per session.
type Article struct {
	SessionID      string         `json:"session_id"`
	URL            string         `json:"url"`
	Source         SourceName     `json:"source"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	Author         string         `json:"author,omitempty"`
	PublishedAt    int64          `json:"published_at"`
	SentimentScore *float64       `json:"sentiment_score,omitempty"`
	Sentiment      SentimentLabel `json:"sentiment,omitempty"`
	Bias           *BiasLabel     `json:"bias,omitempty"`
	Engagement     Engagement     `json:"engagement,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty"`
}

// Validate checks the invariants every persisted article must satisfy.
func (a Article) Validate() error {
	if strings.TrimSpace(a.SessionID) == "" {
		return &ValidationError{Field: "session_id", Reason: "required"}
	}
	if strings.TrimSpace(a.URL) == "" {
		return &ValidationError{Field: "url", Reason: "required"}
	}
	caps, ok := Capabilities(a.Source)
	if !ok {
		return &ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", a.Source)}
	}
	if a.SentimentScore == nil {
		return &ValidationError{Field: "sentiment_score", Reason: "required"}
	}
	if s := *a.SentimentScore; s < -1 || s > 1 {
		return &ValidationError{Field: "sentiment_score", Reason: "out of range"}
	}
	if a.Bias != nil {
		if !caps.HasBias {
			return &ValidationError{Field: "bias", Reason: fmt.Sprintf("%s articles carry no bias", a.Source)}
		}
		if _, ok := ParseBiasLabel(string(*a.Bias)); !ok {
			return &ValidationError{Field: "bias", Reason: fmt.Sprintf("unknown label %q", *a.Bias)}
		}
	}
	return nil
}

// BiasOrEmpty returns the bias label or "" when unset.
func (a Article) BiasOrEmpty() BiasLabel {
	if a.Bias == nil {
		return ""
	}
	return *a.Bias
}

// Clone returns a deep copy so cached values are never shared with callers.
func (a Article) Clone() Article {
	out := a
	if a.SentimentScore != nil {
		v := *a.SentimentScore
		out.SentimentScore = &v
	}
	if a.Bias != nil {
		v := *a.Bias
		out.Bias = &v
	}
	out.Engagement.Likes = cloneInt(a.Engagement.Likes)
	out.Engagement.Score = cloneInt(a.Engagement.Score)
	out.Engagement.Comments = cloneInt(a.Engagement.Comments)
	out.Engagement.Replies = cloneInt(a.Engagement.Replies)
	out.Engagement.Reposts = cloneInt(a.Engagement.Reposts)
	out.Engagement.Quotes = cloneInt(a.Engagement.Quotes)
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bias returns a pointer to l.
func Bias(l BiasLabel) *BiasLabel { return &l }
