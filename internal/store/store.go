// Package store implements the session cache: enriched articles keyed by
// (session id, url) with idempotent upsert semantics.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/models"
)

// Backend names accepted by Open.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

var errZeroCutoff = errors.New("cutoff must be set")

// Cache is the session cache contract shared by every backend. Unknown
// sessions and urls are reported as found=false, never as errors. Backend
// failures are *models.StorageError.
type Cache interface {
	EnsureSession(ctx context.Context, id string) (string, error)
	SessionExists(ctx context.Context, id string) (bool, error)
	UpsertArticle(ctx context.Context, sessionID string, a models.Article) error
	GetArticle(ctx context.Context, sessionID, url string) (models.Article, bool, error)
	ListArticles(ctx context.Context, sessionID string, f ListFilter) ([]models.Article, error)
	PruneSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// ListFilter narrows ListArticles. Zero values match everything.
type ListFilter struct {
	Source models.SourceName
	Bias   models.BiasLabel
	Limit  int
}

func (f ListFilter) match(a models.Article) bool {
	if f.Source != "" && a.Source != f.Source {
		return false
	}
	if f.Bias != "" && a.BiasOrEmpty() != f.Bias {
		return false
	}
	return true
}

// Open returns the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Cache, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendPostgres:
		return NewPostgres(ctx, cfg.Postgres)
	case BackendSQLite:
		return NewSQLite(ctx, cfg.SQLite.Path)
	case BackendRedis:
		return NewRedis(ctx, cfg.Redis)
	case BackendMemory, "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// NewSessionID issues a fresh opaque session identifier.
func NewSessionID() string { return uuid.NewString() }

// prepareArticle validates a and stamps the session and update time.
func prepareArticle(sessionID string, a models.Article) (models.Article, error) {
	a = a.Clone()
	a.SessionID = sessionID
	a.UpdatedAt = time.Now().UTC()
	if err := a.Validate(); err != nil {
		return models.Article{}, err
	}
	return a, nil
}

func storageErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *models.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &models.StorageError{Op: op, Key: key, Err: err}
}

func articleKey(sessionID, url string) string { return sessionID + "/" + url }
