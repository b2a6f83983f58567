// Package news defines the source adapter contract shared by the NewsAPI,
// Reddit and Bluesky clients, plus the fixed outlet table.
package news

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/newslens/models"
)

// Source is one upstream search capability.
type Source interface {
	Name() models.SourceName
	Search(ctx context.Context, query string, limit int) ([]RawItem, error)
}

// RawItem is an upstream result before normalization. Timestamps stay in the
// upstream format; the normalizer converts them.
type RawItem struct {
	Source models.SourceName `json:"source"`
	// Outlet is the outlet name reported by the news-search API, if any.
	Outlet    string `json:"outlet,omitempty"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Author    string `json:"author,omitempty"`
	Handle    string `json:"handle,omitempty"`
	Subreddit string `json:"subreddit,omitempty"`

	// PublishedAt is an ISO-8601 string (NewsAPI, Bluesky).
	PublishedAt string `json:"published_at,omitempty"`
	// CreatedUnix is epoch seconds with fraction (Reddit created_utc).
	CreatedUnix float64 `json:"created_unix,omitempty"`

	Likes    *int `json:"likes,omitempty"`
	Score    *int `json:"score,omitempty"`
	Comments *int `json:"comments,omitempty"`
	Replies  *int `json:"replies,omitempty"`
	Reposts  *int `json:"reposts,omitempty"`
	Quotes   *int `json:"quotes,omitempty"`
}

// Result is the (value, error) pair collected for one source.
type Result struct {
	Source   models.SourceName
	Items    []RawItem
	Err      error
	Duration time.Duration
}

// SearchWithTimeout runs src.Search under its own deadline. Any failure
// yields no items and a *models.SourceError.
func SearchWithTimeout(ctx context.Context, src Source, query string, limit int, timeout time.Duration) Result {
	start := time.Now()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	items, err := src.Search(ctx, query, limit)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	res := Result{Source: src.Name(), Duration: time.Since(start)}
	if err != nil {
		var se *models.SourceError
		if !errors.As(err, &se) {
			err = &models.SourceError{Source: src.Name(), Err: err}
		}
		res.Err = err
		return res
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	res.Items = items
	return res
}

// StatusError is returned by adapters for unexpected HTTP statuses.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("unexpected status %d", e.Status)
}
