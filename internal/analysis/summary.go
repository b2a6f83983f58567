package analysis

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/newslens/models"
)

// Summary is the response for one summarised article.
type Summary struct {
	URL     string            `json:"url"`
	Title   string            `json:"title"`
	Source  models.SourceName `json:"source"`
	Summary string            `json:"summary"`
}

// Summarize summarises a cached article of the session.
func (s *Service) Summarize(ctx context.Context, sessionID, url string) (Summary, error) {
	if url == "" {
		return Summary{}, &models.ValidationError{Field: "url", Reason: "required"}
	}
	if err := s.requireSession(ctx, sessionID); err != nil {
		return Summary{}, err
	}
	a, found, err := s.cache.GetArticle(ctx, sessionID, url)
	if err != nil {
		return Summary{}, err
	}
	if !found {
		return Summary{}, models.ErrArticleNotFound
	}
	text, err := s.llm.Summarize(ctx, a.Title, s.fullText(ctx, a))
	if err != nil {
		return Summary{}, fmt.Errorf("generate summary: %w", err)
	}
	return Summary{URL: a.URL, Title: a.Title, Source: a.Source, Summary: text}, nil
}
