// Package enrich attaches sentiment to every article and an editorial bias
// label to news outlet articles.
package enrich

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/logging"
	"github.com/mohammad-safakhou/newslens/internal/normalize"
	"github.com/mohammad-safakhou/newslens/internal/sentiment"
	"github.com/mohammad-safakhou/newslens/internal/telemetry"
	"github.com/mohammad-safakhou/newslens/models"
	"github.com/mohammad-safakhou/newslens/provider"
)

// FullTextFetcher retrieves article text from the outlet page.
type FullTextFetcher interface {
	FetchFullText(ctx context.Context, url string) (string, error)
}

// Engine runs the sentiment stage then the bias stage.
type Engine struct {
	cfg        config.EnrichmentConfig
	scorer     *sentiment.Scorer
	classifier provider.BiasClassifier
	fetcher    FullTextFetcher
	normalizer normalize.Normalizer
	metrics    *telemetry.Metrics
	logger     *logrus.Entry
}

// Option customises an Engine.
type Option func(*Engine)

// WithFetcher enables lazy full-text retrieval for short news articles.
func WithFetcher(f FullTextFetcher, n normalize.Normalizer) Option {
	return func(e *Engine) {
		e.fetcher = f
		e.normalizer = n
	}
}

func WithMetrics(m *telemetry.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = logging.Component(l, "enrich") }
}

// New returns an Engine. A nil classifier leaves every bias unset.
func New(cfg config.EnrichmentConfig, classifier provider.BiasClassifier, opts ...Option) *Engine {
	if cfg.BiasConcurrency < 1 {
		cfg.BiasConcurrency = 1
	}
	e := &Engine{
		cfg:        cfg,
		scorer:     sentiment.New(),
		classifier: classifier,
		logger:     logging.Component(nil, "enrich"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich returns a copy of articles, in the same order, with sentiment set on
// every article and bias set on news articles whose classification succeeded.
// Classification failures are returned as *models.ClassificationError values
// and never drop the article.
func (e *Engine) Enrich(ctx context.Context, articles []models.Article) ([]models.Article, []error) {
	out := make([]models.Article, len(articles))
	for i, a := range articles {
		out[i] = a.Clone()
		out[i].Bias = nil
		e.scoreSentiment(&out[i])
	}
	if e.classifier == nil {
		return out, nil
	}

	errs := make([]error, len(out))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BiasConcurrency)
	for i := range out {
		if !models.IsNewsOutlet(out[i].Source) {
			continue
		}
		i := i
		g.Go(func() error {
			// Each goroutine owns out[i] and errs[i] exclusively.
			errs[i] = e.classify(gctx, &out[i])
			return nil
		})
	}
	_ = g.Wait()

	var collected []error
	for _, err := range errs {
		if err != nil {
			collected = append(collected, err)
		}
	}
	return out, collected
}

func (e *Engine) scoreSentiment(a *models.Article) {
	text := strings.TrimSpace(a.Title + " " + a.Content)
	score := 0.0
	if text != "" {
		score = e.scorer.Score(text)
	}
	a.SentimentScore = models.Float64(score)
	caps, _ := models.Capabilities(a.Source)
	if !caps.NativeSentiment || a.Sentiment == "" {
		a.Sentiment = sentiment.Label(score)
	}
}

func (e *Engine) classify(ctx context.Context, a *models.Article) error {
	if err := ctx.Err(); err != nil {
		return e.fail(a, err)
	}
	if e.fetcher != nil && e.normalizer.NeedsFullText(*a) {
		if text, err := e.fetcher.FetchFullText(ctx, a.URL); err == nil {
			if cleaned := e.normalizer.CleanText(text); len(cleaned) > len(a.Content) {
				a.Content = cleaned
				e.scoreSentiment(a)
			}
		} else {
			e.logger.WithError(err).WithField("url", a.URL).Debug("full text unavailable, classifying snippet")
		}
	}

	callCtx := ctx
	if e.cfg.BiasTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.BiasTimeout)
		defer cancel()
	}
	start := time.Now()
	label, err := e.classifier.ClassifyBias(callCtx, a.Title, a.Content)
	if err == nil {
		if _, ok := models.ParseBiasLabel(string(label)); !ok {
			err = errors.New("classifier returned unknown label " + string(label))
		}
	}
	if err != nil {
		return e.fail(a, err)
	}
	a.Bias = models.Bias(label)
	e.metrics.ObserveClassification(telemetry.StatusOK)
	e.logger.WithFields(logrus.Fields{"url": a.URL, "bias": label, "took": time.Since(start)}).Debug("classified")
	return nil
}

func (e *Engine) fail(a *models.Article, err error) error {
	e.metrics.ObserveClassification(telemetry.StatusError)
	if e.cfg.UnratedOnFailure {
		a.Bias = models.Bias(models.BiasUnrated)
	} else {
		a.Bias = nil
	}
	e.logger.WithError(err).WithField("url", a.URL).Warn("bias classification failed")
	return &models.ClassificationError{URL: a.URL, Err: err}
}
