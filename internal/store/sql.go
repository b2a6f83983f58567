package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mohammad-safakhou/newslens/models"
)

// sqlStore implements Cache over database/sql. Postgres and SQLite share it;
// they differ only in placeholder format and schema management.
type sqlStore struct {
	DB *sql.DB
	sb sq.StatementBuilderType
}

func newSQLStore(db *sql.DB, placeholder sq.PlaceholderFormat) *sqlStore {
	return &sqlStore{DB: db, sb: sq.StatementBuilder.PlaceholderFormat(placeholder)}
}

func (s *sqlStore) EnsureSession(ctx context.Context, id string) (string, error) {
	if id == "" {
		id = NewSessionID()
	}
	query, args, err := s.sb.Insert("sessions").
		Columns("id", "created_at").
		Values(id, time.Now().UTC()).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return "", storageErr("ensure_session", id, err)
	}
	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		return "", storageErr("ensure_session", id, err)
	}
	return id, nil
}

func (s *sqlStore) SessionExists(ctx context.Context, id string) (bool, error) {
	query, args, err := s.sb.Select("1").From("sessions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, storageErr("session_exists", id, err)
	}
	var one int
	err = s.DB.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("session_exists", id, err)
	}
	return true, nil
}

// UpsertArticle writes the whole article as one row. The conflict clause
// replaces every column so a row never mixes two writes.
func (s *sqlStore) UpsertArticle(ctx context.Context, sessionID string, a models.Article) error {
	a, err := prepareArticle(sessionID, a)
	if err != nil {
		return err
	}
	key := articleKey(sessionID, a.URL)
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal article: %w", err)
	}
	var bias sql.NullString
	if a.Bias != nil {
		bias = sql.NullString{String: string(*a.Bias), Valid: true}
	}
	query, args, err := s.sb.Insert("articles").
		Columns("session_id", "url", "source", "bias", "data", "updated_at").
		Values(sessionID, a.URL, string(a.Source), bias, string(data), a.UpdatedAt).
		Suffix("ON CONFLICT (session_id, url) DO UPDATE SET source = EXCLUDED.source, bias = EXCLUDED.bias, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return storageErr("upsert", key, err)
	}
	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		return storageErr("upsert", key, err)
	}
	return nil
}

func (s *sqlStore) GetArticle(ctx context.Context, sessionID, url string) (models.Article, bool, error) {
	key := articleKey(sessionID, url)
	query, args, err := s.sb.Select("data").From("articles").
		Where(sq.Eq{"session_id": sessionID, "url": url}).ToSql()
	if err != nil {
		return models.Article{}, false, storageErr("get", key, err)
	}
	var data []byte
	err = s.DB.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Article{}, false, nil
	}
	if err != nil {
		return models.Article{}, false, storageErr("get", key, err)
	}
	var a models.Article
	if err := json.Unmarshal(data, &a); err != nil {
		return models.Article{}, false, storageErr("get", key, fmt.Errorf("decode article: %w", err))
	}
	return a, true, nil
}

func (s *sqlStore) ListArticles(ctx context.Context, sessionID string, f ListFilter) ([]models.Article, error) {
	q := s.sb.Select("data").From("articles").Where(sq.Eq{"session_id": sessionID}).OrderBy("id ASC")
	if f.Source != "" {
		q = q.Where(sq.Eq{"source": string(f.Source)})
	}
	if f.Bias != "" {
		q = q.Where(sq.Eq{"bias": string(f.Bias)})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, storageErr("list", sessionID, err)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list", sessionID, err)
	}
	defer rows.Close()

	var out []models.Article
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, storageErr("list", sessionID, err)
		}
		var a models.Article
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, storageErr("list", sessionID, fmt.Errorf("decode article: %w", err))
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", sessionID, err)
	}
	return out, nil
}

// PruneSessionsBefore deletes sessions created before cutoff together with
// their articles.
func (s *sqlStore) PruneSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, errZeroCutoff
	}
	cutoff = cutoff.UTC()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("prune", "", err)
	}
	defer func() { _ = tx.Rollback() }()

	delArticles, args, err := s.sb.Delete("articles").
		Where(sq.Expr("session_id IN (SELECT id FROM sessions WHERE created_at < ?)", cutoff)).
		ToSql()
	if err != nil {
		return 0, storageErr("prune", "", err)
	}
	if _, err := tx.ExecContext(ctx, delArticles, args...); err != nil {
		return 0, storageErr("prune", "", err)
	}
	delSessions, args, err := s.sb.Delete("sessions").Where(sq.Lt{"created_at": cutoff}).ToSql()
	if err != nil {
		return 0, storageErr("prune", "", err)
	}
	res, err := tx.ExecContext(ctx, delSessions, args...)
	if err != nil {
		return 0, storageErr("prune", "", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("prune", "", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("prune", "", err)
	}
	return n, nil
}

func (s *sqlStore) Close() error { return s.DB.Close() }
