package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/newslens/config"
)

// Postgres is the Cache backed by PostgreSQL. The schema is owned by the
// migrations directory (newslens migrate).
type Postgres struct {
	*sqlStore
}

// NewPostgres connects using cfg.DSN() and pings the server.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	return NewPostgresWithDSN(ctx, cfg.DSN())
}

// NewPostgresWithDSN constructs the store using an explicit Postgres DSN
func NewPostgresWithDSN(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, storageErr("open", "", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storageErr("ping", "", fmt.Errorf("postgres: %w", err))
	}
	return NewPostgresFromDB(db), nil
}

// NewPostgresFromDB wraps an existing handle. Used with sqlmock in tests.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{sqlStore: newSQLStore(db, sq.Dollar)}
}
