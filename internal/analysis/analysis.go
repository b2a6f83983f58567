// Package analysis serves the read side of a session: article summaries,
// left/right insights and a retrieval-grounded chat.
package analysis

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/newslens/internal/enrich"
	"github.com/mohammad-safakhou/newslens/internal/helpers"
	"github.com/mohammad-safakhou/newslens/internal/logging"
	"github.com/mohammad-safakhou/newslens/internal/store"
	"github.com/mohammad-safakhou/newslens/models"
	"github.com/mohammad-safakhou/newslens/provider"
)

// Service bundles the three read operations over one cache and LLM.
type Service struct {
	cache   store.Cache
	llm     provider.Provider
	fetcher enrich.FullTextFetcher
	logger  *logrus.Entry
}

// Option customises a Service.
type Option func(*Service)

// WithFetcher makes news articles use outlet full text when available.
func WithFetcher(f enrich.FullTextFetcher) Option { return func(s *Service) { s.fetcher = f } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.logger = logging.Component(l, "analysis") }
}

// New returns a Service.
func New(cache store.Cache, llm provider.Provider, opts ...Option) *Service {
	s := &Service{cache: cache, llm: llm, logger: logging.Component(nil, "analysis")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) requireSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return &models.ValidationError{Field: "session_id", Reason: "required"}
	}
	ok, err := s.cache.SessionExists(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrSessionNotFound
	}
	return nil
}

// fullText returns outlet page text for news articles and falls back to the
// cached content on any failure.
func (s *Service) fullText(ctx context.Context, a models.Article) string {
	if s.fetcher == nil || !models.IsNewsOutlet(a.Source) {
		return a.Content
	}
	text, err := s.fetcher.FetchFullText(ctx, a.URL)
	if err != nil || text == "" {
		if err != nil {
			s.logger.WithError(err).WithField("url", a.URL).Debug("using cached content")
		}
		return a.Content
	}
	return helpers.CollapseWhitespace(text)
}
