package store

import (
	"context"
	"sync"
	"time"

	"github.com/mohammad-safakhou/newslens/models"
)

const memoryShards = 32

// Memory is an in-process Cache. Sessions are spread across lock shards so
// writers to different sessions rarely contend.
type Memory struct {
	shards [memoryShards]memoryShard
}

type memoryShard struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

type memorySession struct {
	createdAt time.Time
	order     []string
	articles  map[string]models.Article
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	m := &Memory{}
	for i := range m.shards {
		m.shards[i].sessions = make(map[string]*memorySession)
	}
	return m
}

func (m *Memory) shard(id string) *memoryShard {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return &m.shards[h%memoryShards]
}

func (m *Memory) EnsureSession(_ context.Context, id string) (string, error) {
	if id == "" {
		id = NewSessionID()
	}
	sh := m.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[id]; !ok {
		sh.sessions[id] = &memorySession{createdAt: time.Now().UTC(), articles: make(map[string]models.Article)}
	}
	return id, nil
}

func (m *Memory) SessionExists(_ context.Context, id string) (bool, error) {
	sh := m.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	_, ok := sh.sessions[id]
	return ok, nil
}

func (m *Memory) UpsertArticle(_ context.Context, sessionID string, a models.Article) error {
	a, err := prepareArticle(sessionID, a)
	if err != nil {
		return err
	}
	sh := m.shard(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sess, ok := sh.sessions[sessionID]
	if !ok {
		return &models.StorageError{Op: "upsert", Key: articleKey(sessionID, a.URL), Err: models.ErrSessionNotFound}
	}
	if _, exists := sess.articles[a.URL]; !exists {
		sess.order = append(sess.order, a.URL)
	}
	sess.articles[a.URL] = a
	return nil
}

func (m *Memory) GetArticle(_ context.Context, sessionID, url string) (models.Article, bool, error) {
	sh := m.shard(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sess, ok := sh.sessions[sessionID]
	if !ok {
		return models.Article{}, false, nil
	}
	a, ok := sess.articles[url]
	if !ok {
		return models.Article{}, false, nil
	}
	return a.Clone(), true, nil
}

func (m *Memory) ListArticles(_ context.Context, sessionID string, f ListFilter) ([]models.Article, error) {
	sh := m.shard(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sess, ok := sh.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]models.Article, 0, len(sess.order))
	for _, url := range sess.order {
		a := sess.articles[url]
		if !f.match(a) {
			continue
		}
		out = append(out, a.Clone())
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) PruneSessionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, errZeroCutoff
	}
	var n int64
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			if sess.createdAt.Before(cutoff) {
				delete(sh.sessions, id)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }
