package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_created_at_idx ON sessions (created_at);
CREATE TABLE IF NOT EXISTS articles (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	source     TEXT NOT NULL,
	bias       TEXT,
	data       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (session_id, url)
);
CREATE INDEX IF NOT EXISTS articles_session_idx ON articles (session_id, id);
`

// SQLite is the Cache backed by an embedded SQLite file.
type SQLite struct {
	*sqlStore
}

// NewSQLite opens (creating when needed) the database at path. ":memory:"
// gives a private in-memory database.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr("open", path, err)
	}
	// One writer at a time; SQLite serialises writes anyway and a single
	// connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	s := &SQLite{sqlStore: newSQLStore(db, sq.Question)}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, sqliteSchema); err != nil {
		return storageErr("migrate", "", fmt.Errorf("sqlite schema: %w", err))
	}
	return nil
}
