package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/aggregator"
	"github.com/mohammad-safakhou/newslens/internal/analysis"
	"github.com/mohammad-safakhou/newslens/internal/enrich"
	"github.com/mohammad-safakhou/newslens/internal/fetcher"
	"github.com/mohammad-safakhou/newslens/internal/normalize"
	"github.com/mohammad-safakhou/newslens/internal/store"
	"github.com/mohammad-safakhou/newslens/internal/telemetry"
	"github.com/mohammad-safakhou/newslens/news/bluesky"
	"github.com/mohammad-safakhou/newslens/news/newsapi"
	"github.com/mohammad-safakhou/newslens/news/reddit"
	"github.com/mohammad-safakhou/newslens/provider"
)

// App is the fully wired pipeline shared by the HTTP server and the CLI.
type App struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Metrics    *telemetry.Metrics
	Cache      store.Cache
	Aggregator *aggregator.Aggregator
	// Analysis is nil when no LLM key is configured.
	Analysis *analysis.Service
	Fetcher  *fetcher.Fetcher
}

// Build wires every component described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	app := &App{Config: cfg, Logger: logger}
	if cfg.Telemetry.Enabled {
		app.Metrics = telemetry.New()
	}

	if cfg.Storage.Backend == store.BackendPostgres {
		if err := Migrate(defaultMigrationsDir, cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
			logger.WithError(err).Warn("migrations not applied")
		}
	}
	cache, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	app.Cache = cache

	f, err := fetcher.New(cfg.Fetcher,
		fetcher.WithHTTPClient(&http.Client{Timeout: cfg.Fetcher.Timeout}),
		fetcher.WithMetrics(app.Metrics),
		fetcher.WithLogger(logger),
	)
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("build fetcher: %w", err)
	}
	app.Fetcher = f

	llm, err := provider.NewProvider(cfg.LLM, logger, app.Metrics)
	switch {
	case errors.Is(err, provider.ErrMissingAPIKey):
		logger.Warn("llm.api_key not set: bias classification and analysis disabled")
	case err != nil:
		_ = cache.Close()
		return nil, fmt.Errorf("build llm provider: %w", err)
	}

	norm := normalize.New(cfg.Aggregator.MaxContentLength, cfg.Enrichment.MinContentLength)
	var classifier provider.BiasClassifier
	if llm != nil {
		classifier = llm
	}
	engine := enrich.New(cfg.Enrichment, classifier,
		enrich.WithFetcher(f, norm),
		enrich.WithMetrics(app.Metrics),
		enrich.WithLogger(logger),
	)

	opts := []aggregator.Option{aggregator.WithMetrics(app.Metrics), aggregator.WithLogger(logger)}
	sourceOpts, err := buildSources(cfg.Sources, logger)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	opts = append(opts, sourceOpts...)
	app.Aggregator = aggregator.New(cfg.Aggregator, norm, engine, cache, opts...)

	if llm != nil {
		app.Analysis = analysis.New(cache, llm, analysis.WithFetcher(f), analysis.WithLogger(logger))
	}
	return app, nil
}

func buildSources(cfg config.SourcesConfig, logger *logrus.Logger) ([]aggregator.Option, error) {
	var opts []aggregator.Option
	if cfg.NewsAPI.Enabled {
		src, err := newsapi.New(cfg.NewsAPI, &http.Client{Timeout: cfg.NewsAPI.Timeout}, logger)
		if err != nil {
			return nil, fmt.Errorf("build newsapi source: %w", err)
		}
		opts = append(opts, aggregator.WithSource(src, cfg.NewsAPI.Timeout, cfg.NewsAPI.PageSize))
	}
	if cfg.Reddit.Enabled {
		src := reddit.New(cfg.Reddit, &http.Client{Timeout: cfg.Reddit.Timeout}, logger)
		opts = append(opts, aggregator.WithSource(src, cfg.Reddit.Timeout, cfg.Reddit.Limit))
	}
	if cfg.Bluesky.Enabled {
		src := bluesky.New(cfg.Bluesky, &http.Client{Timeout: cfg.Bluesky.Timeout}, logger)
		opts = append(opts, aggregator.WithSource(src, cfg.Bluesky.Timeout, cfg.Bluesky.Limit))
	}
	if len(opts) == 0 {
		logger.Warn("no sources enabled")
	}
	return opts, nil
}

// Close releases the storage backend.
func (a *App) Close() error {
	if a == nil || a.Cache == nil {
		return nil
	}
	return a.Cache.Close()
}
