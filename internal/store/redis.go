package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/models"
)

const (
	redisKeyPrefix   = "newslens:"
	redisSessionsKey = redisKeyPrefix + "sessions"
)

// Redis is the Cache backed by Redis. Each session owns a hash of url ->
// article JSON and a sorted set recording first-write order.
type Redis struct {
	client *redis.Client
}

// Conn dials Redis and verifies the connection with PING.
func Conn(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		DialTimeout: cfg.Timeout,
		Password:    cfg.Password,
		DB:          cfg.DB,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

// NewRedis connects using cfg.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	client, err := Conn(ctx, cfg)
	if err != nil {
		return nil, storageErr("connect", cfg.Host, err)
	}
	return NewRedisFromClient(client), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func sessionKey(id string) string  { return redisKeyPrefix + "session:" + id }
func articlesKey(id string) string { return sessionKey(id) + ":articles" }
func orderKey(id string) string    { return sessionKey(id) + ":order" }

func (r *Redis) EnsureSession(ctx context.Context, id string) (string, error) {
	if id == "" {
		id = NewSessionID()
	}
	now := time.Now().UTC()
	// The index entry is written on every call so a session key left without
	// one is repaired here; NX keeps the original score.
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, sessionKey(id), now.Format(time.RFC3339Nano), 0)
		pipe.ZAddNX(ctx, redisSessionsKey, redis.Z{Score: float64(now.Unix()), Member: id})
		return nil
	})
	if err != nil {
		return "", storageErr("ensure_session", id, err)
	}
	return id, nil
}

func (r *Redis) SessionExists(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return false, storageErr("session_exists", id, err)
	}
	return n == 1, nil
}

// UpsertArticle replaces the url field with the complete article in one
// MULTI block. HSET on a single field is atomic, so concurrent writers to
// the same key leave exactly one of their documents.
func (r *Redis) UpsertArticle(ctx context.Context, sessionID string, a models.Article) error {
	a, err := prepareArticle(sessionID, a)
	if err != nil {
		return err
	}
	key := articleKey(sessionID, a.URL)
	exists, err := r.SessionExists(ctx, sessionID)
	if err != nil {
		return err
	}
	if !exists {
		return &models.StorageError{Op: "upsert", Key: key, Err: models.ErrSessionNotFound}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal article: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, articlesKey(sessionID), a.URL, data)
		p.ZAddNX(ctx, orderKey(sessionID), redis.Z{Score: float64(time.Now().UnixNano()), Member: a.URL})
		return nil
	})
	return storageErr("upsert", key, err)
}

func (r *Redis) GetArticle(ctx context.Context, sessionID, url string) (models.Article, bool, error) {
	key := articleKey(sessionID, url)
	raw, err := r.client.HGet(ctx, articlesKey(sessionID), url).Result()
	if errors.Is(err, redis.Nil) {
		return models.Article{}, false, nil
	}
	if err != nil {
		return models.Article{}, false, storageErr("get", key, err)
	}
	var a models.Article
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return models.Article{}, false, storageErr("get", key, fmt.Errorf("decode article: %w", err))
	}
	return a, true, nil
}

func (r *Redis) ListArticles(ctx context.Context, sessionID string, f ListFilter) ([]models.Article, error) {
	urls, err := r.client.ZRange(ctx, orderKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, storageErr("list", sessionID, err)
	}
	if len(urls) == 0 {
		return nil, nil
	}
	values, err := r.client.HMGet(ctx, articlesKey(sessionID), urls...).Result()
	if err != nil {
		return nil, storageErr("list", sessionID, err)
	}
	var out []models.Article
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var a models.Article
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, storageErr("list", sessionID, fmt.Errorf("decode article: %w", err))
		}
		if !f.match(a) {
			continue
		}
		out = append(out, a)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (r *Redis) PruneSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, errZeroCutoff
	}
	ids, err := r.client.ZRangeByScore(ctx, redisSessionsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, storageErr("prune", "", err)
	}
	var n int64
	for _, id := range ids {
		_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, sessionKey(id), articlesKey(id), orderKey(id))
			p.ZRem(ctx, redisSessionsKey, id)
			return nil
		})
		if err != nil {
			return n, storageErr("prune", id, err)
		}
		n++
	}
	return n, nil
}

func (r *Redis) Close() error { return r.client.Close() }
