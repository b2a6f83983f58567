package analysis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/newslens/internal/helpers"
	"github.com/mohammad-safakhou/newslens/internal/store"
	"github.com/mohammad-safakhou/newslens/models"
)

const (
	chatTopK         = 6
	chatArticleChars = 1200
)

// ChatRequest is one user turn in a session conversation.
type ChatRequest struct {
	SessionID string               `json:"session_id"`
	Message   string               `json:"message"`
	History   []models.ChatMessage `json:"history"`
}

type chatDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source"`
	Bias    string `json:"bias"`
}

// Chat answers a question grounded on the session's best matching articles.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (models.ChatReply, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return models.ChatReply{}, &models.ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if err := s.requireSession(ctx, req.SessionID); err != nil {
		return models.ChatReply{}, err
	}
	articles, err := s.cache.ListArticles(ctx, req.SessionID, store.ListFilter{})
	if err != nil {
		return models.ChatReply{}, err
	}
	relevant, err := retrieve(articles, msg, chatTopK)
	if err != nil {
		return models.ChatReply{}, fmt.Errorf("retrieve articles: %w", err)
	}

	var b strings.Builder
	for _, a := range relevant {
		fmt.Fprintf(&b, "[%s", a.Source)
		if a.Bias != nil {
			fmt.Fprintf(&b, ", %s", *a.Bias)
		}
		fmt.Fprintf(&b, "] %s (%s)\n%s\n\n", a.Title, a.URL, helpers.Truncate(a.Content, chatArticleChars))
	}
	reply, err := s.llm.Chat(ctx, b.String(), req.History, msg)
	if err != nil {
		return models.ChatReply{}, fmt.Errorf("chat: %w", err)
	}
	return reply, nil
}

// retrieve ranks articles against query with an in-memory bleve index. When
// nothing matches, the first k articles are used.
func retrieve(articles []models.Article, query string, k int) ([]models.Article, error) {
	if len(articles) == 0 {
		return nil, nil
	}
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	defer index.Close()

	batch := index.NewBatch()
	for i, a := range articles {
		doc := chatDoc{Title: a.Title, Content: a.Content, Source: string(a.Source), Bias: string(a.BiasOrEmpty())}
		if err := batch.Index(strconv.Itoa(i), doc); err != nil {
			return nil, err
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, err
	}

	q := bleve.NewMatchQuery(query)
	searchReq := bleve.NewSearchRequestOptions(q, k, 0, false)
	res, err := index.Search(searchReq)
	if err != nil {
		return nil, err
	}
	out := make([]models.Article, 0, k)
	for _, hit := range res.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(articles) {
			continue
		}
		out = append(out, articles[i])
	}
	if len(out) == 0 {
		if len(articles) < k {
			k = len(articles)
		}
		out = append(out, articles[:k]...)
	}
	return out, nil
}
