// Package fetcher retrieves and extracts the full text of outlet articles.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/helpers"
	"github.com/mohammad-safakhou/newslens/internal/logging"
	"github.com/mohammad-safakhou/newslens/internal/telemetry"
	"github.com/mohammad-safakhou/newslens/models"
	"github.com/mohammad-safakhou/newslens/news"
)

const maxPageBytes = 5 << 20

var (
	errHostNotAllowed = errors.New("host is not a known outlet")
	errDisallowed     = errors.New("host disallowed by configuration")
	errRobots         = errors.New("disallowed by robots.txt")
	errUnparseable    = errors.New("unparseable content")
)

// Fetcher downloads outlet pages politely and extracts their main text.
type Fetcher struct {
	cfg       config.FetcherConfig
	client    *http.Client
	cache     *cache.Cache
	robots    *robotsChecker
	limiter   *domainLimiter
	sem       chan struct{}
	extractor Extractor
	fallback  Extractor
	renderer  Renderer
	allowHost func(host string) bool
	metrics   *telemetry.Metrics
	logger    *logrus.Entry
}

// Option customises a Fetcher.
type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

func WithRenderer(r Renderer) Option { return func(f *Fetcher) { f.renderer = r } }

// WithHostFilter replaces the outlet table check. Used by tests against
// local servers.
func WithHostFilter(fn func(host string) bool) Option { return func(f *Fetcher) { f.allowHost = fn } }

func WithMetrics(m *telemetry.Metrics) Option { return func(f *Fetcher) { f.metrics = m } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Fetcher) { f.logger = logging.Component(l, "fetcher") }
}

// New builds a Fetcher from configuration.
func New(cfg config.FetcherConfig, opts ...Option) (*Fetcher, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	extractor, err := NewExtractor(cfg.Extractor)
	if err != nil {
		return nil, err
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	f := &Fetcher{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		cache:     cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		limiter:   newDomainLimiter(cfg.PerDomainRPS),
		sem:       make(chan struct{}, maxConcurrent),
		extractor: extractor,
		fallback:  ParagraphExtractor{},
		renderer:  ChromeRenderer{UserAgent: cfg.UserAgent, Timeout: cfg.RenderTimeout},
		allowHost: func(host string) bool {
			_, ok := news.MatchHost(host)
			return ok
		},
		logger: logging.Component(nil, "fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.robots = newRobotsChecker(cfg.UserAgent, f.client)
	return f, nil
}

// FetchFullText returns the cleaned main text of the page at rawURL,
// truncated to the configured maximum. Only known outlet hosts are fetched.
func (f *Fetcher) FetchFullText(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", &models.FetchError{URL: rawURL, Err: fmt.Errorf("invalid url")}
	}
	host := u.Hostname()
	if !f.allowHost(host) {
		f.metrics.ObserveFetch(telemetry.StatusSkip)
		return "", &models.FetchError{URL: rawURL, Err: errHostNotAllowed}
	}
	if f.cfg.IsDisallowed(host) {
		f.metrics.ObserveFetch(telemetry.StatusSkip)
		return "", &models.FetchError{URL: rawURL, Err: errDisallowed}
	}

	key := helpers.CanonicalURL(u)
	if cached, ok := f.cache.Get(key); ok {
		f.metrics.ObserveFetch(telemetry.StatusCache)
		return cached.(string), nil
	}

	text, err := f.fetch(ctx, u)
	if err != nil {
		f.metrics.ObserveFetch(telemetry.StatusError)
		f.logger.WithError(err).WithField("url", rawURL).Debug("full text fetch failed")
		return "", err
	}
	f.metrics.ObserveFetch(telemetry.StatusOK)
	f.cache.Set(key, text, cache.DefaultExpiration)
	return text, nil
}

func (f *Fetcher) fetch(ctx context.Context, u *url.URL) (string, error) {
	rawURL := u.String()
	delay := defaultCrawlDelay
	if f.cfg.RespectRobots {
		allowed, d, err := f.robots.canFetch(ctx, u)
		if err != nil {
			return "", &models.FetchError{URL: rawURL, Err: err}
		}
		if !allowed {
			return "", &models.FetchError{URL: rawURL, Err: errRobots}
		}
		delay = d
	}

	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return "", &models.FetchError{URL: rawURL, Err: ctx.Err()}
	}
	if err := f.limiter.wait(ctx, u.Hostname(), delay); err != nil {
		return "", &models.FetchError{URL: rawURL, Err: err}
	}

	var page []byte
	if f.cfg.ShouldRender(u.Hostname()) && f.renderer != nil {
		html, err := f.renderer.Render(ctx, rawURL)
		if err != nil {
			return "", &models.FetchError{URL: rawURL, Err: fmt.Errorf("render: %w", err)}
		}
		page = []byte(html)
	} else {
		body, err := f.get(ctx, rawURL)
		if err != nil {
			return "", err
		}
		page = body
	}

	text, err := f.extractor.Extract(page, u)
	if err != nil || strings.TrimSpace(text) == "" {
		text, err = f.fallback.Extract(page, u)
	}
	if err != nil {
		return "", &models.FetchError{URL: rawURL, Err: err}
	}
	text = helpers.CollapseWhitespace(text)
	if text == "" {
		return "", &models.FetchError{URL: rawURL, Err: errUnparseable}
	}
	return helpers.Truncate(text, f.cfg.MaxChars), nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &models.FetchError{URL: rawURL, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}
	body, err := helpers.ReadAllAndClose(resp.Body, maxPageBytes)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Err: err}
	}
	return body, nil
}
