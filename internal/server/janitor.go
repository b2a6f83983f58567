package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/newslens/internal/logging"
	"github.com/mohammad-safakhou/newslens/internal/store"
)

// Janitor prunes sessions older than the retention window on a cron
// schedule.
type Janitor struct {
	cache     store.Cache
	expr      *cronexpr.Expression
	retention time.Duration
	logger    *logrus.Entry
	now       func() time.Time
}

// NewJanitor returns nil when retentionDays is 0.
func NewJanitor(cache store.Cache, schedule string, retentionDays int, logger logrus.FieldLogger) (*Janitor, error) {
	if retentionDays <= 0 {
		return nil, nil
	}
	if schedule == "" {
		schedule = "@daily"
	}
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("storage.janitor_cron: %w", err)
	}
	return &Janitor{
		cache:     cache,
		expr:      expr,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logging.Component(logger, "janitor"),
		now:       time.Now,
	}, nil
}

// Run sweeps at every cron tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	for {
		next := j.expr.Next(j.now())
		if next.IsZero() {
			j.logger.Warn("cron expression has no future run")
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if _, err := j.Sweep(ctx); err != nil {
			j.logger.WithError(err).Error("prune sessions failed")
		}
	}
}

// Sweep removes every session created before now minus the retention window.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.cache.PruneSessionsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.WithFields(logrus.Fields{"pruned": n, "cutoff": cutoff.Format(time.RFC3339)}).Info("pruned sessions")
	}
	return n, nil
}
