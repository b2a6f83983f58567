// Package server exposes the search pipeline and the session analysis over
// HTTP with echo.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// NewEcho builds the router for app.
func NewEcho(app *App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	log := logging.Component(app.Logger, "http")

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			}).Info("request")
			return nil
		},
	}))
	e.HTTPErrorHandler = errorHandler(log)

	origins := app.Config.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if app.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(app.Metrics.Handler()))
	}

	api := e.Group("/api")
	if secret := app.Config.Server.JWTSecret; secret != "" {
		api.Use(AuthMiddleware([]byte(secret)))
	}
	h := &Handler{Searcher: app.Aggregator, Cache: app.Cache}
	if app.Analysis != nil {
		h.Analysis = app.Analysis
	}
	h.Register(api)
	return e
}

// Run builds the app, starts the retention janitor and serves until ctx is
// cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.General.LogLevel, cfg.General.LogFormat)
	app, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	janitor, err := NewJanitor(app.Cache, cfg.Storage.JanitorCron, cfg.Storage.RetentionDays, logger)
	if err != nil {
		return err
	}
	if janitor != nil {
		go janitor.Run(ctx)
	}

	e := NewEcho(app)
	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8000"
	}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("listening")
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
