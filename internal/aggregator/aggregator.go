// Package aggregator runs one search end to end: concurrent fan-out to the
// sources, normalization, enrichment and persistence into the session cache.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/logging"
	"github.com/mohammad-safakhou/newslens/internal/normalize"
	"github.com/mohammad-safakhou/newslens/internal/store"
	"github.com/mohammad-safakhou/newslens/internal/telemetry"
	"github.com/mohammad-safakhou/newslens/models"
	"github.com/mohammad-safakhou/newslens/news"
)

const (
	persistConcurrency    = 8
	defaultPersistTimeout = 10 * time.Second
)

// ErrUnavailable is wrapped by Search when every source failed and the
// session cache could not be used either.
var ErrUnavailable = errors.New("all sources failed and storage is unavailable")

// Enricher is the enrichment stage.
type Enricher interface {
	Enrich(ctx context.Context, articles []models.Article) ([]models.Article, []error)
}

// SearchRequest is one aggregated search.
type SearchRequest struct {
	Query     string
	SessionID string
	// Limit caps items per source. Zero uses each source's configured limit.
	Limit int
}

// SourceReport describes how one source fared.
type SourceReport struct {
	Source   models.SourceName `json:"source"`
	Count    int               `json:"count"`
	Err      error             `json:"-"`
	Duration time.Duration     `json:"duration"`
}

// SearchResult is what survived the pipeline. Articles are those persisted,
// in source completion order.
type SearchResult struct {
	SessionID     string
	Articles      []models.Article
	Sources       []SourceReport
	SourceErrors  []error
	EnrichErrors  []error
	PersistErrors []error
}

type registeredSource struct {
	source  news.Source
	timeout time.Duration
	limit   int
}

// Aggregator owns the request flow and the partial failure policy.
type Aggregator struct {
	cfg        config.AggregatorConfig
	sources    []registeredSource
	normalizer normalize.Normalizer
	enricher   Enricher
	cache      store.Cache
	metrics    *telemetry.Metrics
	logger     *logrus.Entry
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithSource registers a source with its own timeout and item limit.
func WithSource(src news.Source, timeout time.Duration, limit int) Option {
	return func(a *Aggregator) {
		a.sources = append(a.sources, registeredSource{source: src, timeout: timeout, limit: limit})
	}
}

func WithMetrics(m *telemetry.Metrics) Option { return func(a *Aggregator) { a.metrics = m } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Aggregator) { a.logger = logging.Component(l, "aggregator") }
}

// New builds an Aggregator.
func New(cfg config.AggregatorConfig, normalizer normalize.Normalizer, enricher Enricher, cache store.Cache, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:        cfg,
		normalizer: normalizer,
		enricher:   enricher,
		cache:      cache,
		logger:     logging.Component(nil, "aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Search runs the pipeline. It returns an error only for an invalid request
// or when every source failed and storage was unusable; otherwise partial
// failures are reported in the result.
func (a *Aggregator) Search(ctx context.Context, req SearchRequest) (res SearchResult, err error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return SearchResult{}, &models.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	start := time.Now()
	defer func() { a.metrics.ObserveSearch(err, time.Since(start)) }()

	if a.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
		defer cancel()
	}
	log := a.logger.WithField("query", query)

	sessionID, sessionErr := a.cache.EnsureSession(ctx, req.SessionID)
	if sessionErr != nil {
		sessionID = req.SessionID
		if sessionID == "" {
			sessionID = store.NewSessionID()
		}
		log.WithError(sessionErr).Error("ensure session failed")
	}
	res.SessionID = sessionID
	log = log.WithField("session_id", sessionID)

	results := a.fanOut(ctx, query, req.Limit)
	drafts := make([]models.Article, 0)
	pos := make(map[string]int)
	caps := capCounter{cfg: a.cfg}
	for r := range results {
		report := SourceReport{Source: r.Source, Count: len(r.Items), Err: r.Err, Duration: r.Duration}
		res.Sources = append(res.Sources, report)
		a.metrics.ObserveSource(string(r.Source), len(r.Items), r.Err, r.Duration)
		if r.Err != nil {
			res.SourceErrors = append(res.SourceErrors, r.Err)
			log.WithError(r.Err).WithField("source", r.Source).Warn("source failed")
			continue
		}
		for _, item := range r.Items {
			art, ok := a.normalizer.Normalize(item)
			if !ok {
				continue
			}
			art.SessionID = sessionID
			if i, dup := pos[art.URL]; dup {
				drafts[i] = art
				continue
			}
			if !caps.admit(art) {
				continue
			}
			pos[art.URL] = len(drafts)
			drafts = append(drafts, art)
		}
	}

	enriched := drafts
	if a.enricher != nil && len(drafts) > 0 {
		enriched, res.EnrichErrors = a.enricher.Enrich(ctx, drafts)
	}

	// The request deadline may already have fired during enrichment; the
	// articles that survived it must still reach the cache.
	persistTimeout := a.cfg.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()
	persisted, persistErrs := a.persist(persistCtx, sessionID, enriched)
	res.PersistErrors = persistErrs
	for i, ok := range persisted {
		if ok {
			res.Articles = append(res.Articles, enriched[i])
		}
	}

	allSourcesFailed := len(a.sources) > 0 && len(res.SourceErrors) == len(a.sources)
	storageDown := sessionErr != nil && len(res.Articles) == 0
	if allSourcesFailed && storageDown {
		cause := sessionErr
		if len(persistErrs) > 0 {
			cause = persistErrs[0]
		}
		return res, fmt.Errorf("search %q: %w: %w", query, ErrUnavailable, cause)
	}
	log.WithFields(logrus.Fields{
		"articles":       len(res.Articles),
		"source_errors":  len(res.SourceErrors),
		"enrich_errors":  len(res.EnrichErrors),
		"persist_errors": len(res.PersistErrors),
		"took":           time.Since(start),
	}).Info("search completed")
	return res, nil
}

// fanOut starts every source concurrently and streams results in completion
// order. The channel closes once all sources have reported.
func (a *Aggregator) fanOut(ctx context.Context, query string, limit int) <-chan news.Result {
	out := make(chan news.Result, len(a.sources))
	if len(a.sources) == 0 {
		close(out)
		return out
	}
	done := make(chan struct{}, len(a.sources))
	for _, rs := range a.sources {
		rs := rs
		n := rs.limit
		if limit > 0 {
			n = limit
		}
		if n <= 0 {
			n = a.cfg.Limit
		}
		go func() {
			out <- news.SearchWithTimeout(ctx, rs.source, query, n, rs.timeout)
			done <- struct{}{}
		}()
	}
	go func() {
		for range a.sources {
			<-done
		}
		close(out)
	}()
	return out
}

// persist upserts each article independently. ok[i] reports success.
func (a *Aggregator) persist(ctx context.Context, sessionID string, articles []models.Article) ([]bool, []error) {
	ok := make([]bool, len(articles))
	errs := make([]error, len(articles))
	g := new(errgroup.Group)
	g.SetLimit(persistConcurrency)
	for i := range articles {
		i := i
		g.Go(func() error {
			err := a.cache.UpsertArticle(ctx, sessionID, articles[i])
			a.metrics.ObserveUpsert(err)
			if err != nil {
				errs[i] = fmt.Errorf("persist %s: %w", articles[i].URL, err)
				a.logger.WithError(err).WithField("url", articles[i].URL).Error("upsert failed")
				return nil
			}
			ok[i] = true
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
	return ok, collected
}

// capCounter enforces the per-request outlet caps by default outlet lean.
type capCounter struct {
	cfg               config.AggregatorConfig
	news, left, right int
}

func (c *capCounter) admit(art models.Article) bool {
	if !models.IsNewsOutlet(art.Source) {
		return true
	}
	if c.cfg.MaxNews > 0 && c.news >= c.cfg.MaxNews {
		return false
	}
	outlet, _ := news.OutletByName(art.Source)
	switch {
	case outlet.Lean.IsLeft():
		if c.cfg.MaxLeft > 0 && c.left >= c.cfg.MaxLeft {
			return false
		}
		c.left++
	case outlet.Lean.IsRight():
		if c.cfg.MaxRight > 0 && c.right >= c.cfg.MaxRight {
			return false
		}
		c.right++
	}
	c.news++
	return true
}
