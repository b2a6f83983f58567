package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mohammad-safakhou/newslens/internal/store"
	"github.com/mohammad-safakhou/newslens/models"
)

type fakeLLM struct {
	mu          sync.Mutex
	summarized  string
	left, right string
	chatContext string
	history     []models.ChatMessage
	err         error
}

func (f *fakeLLM) ClassifyBias(context.Context, string, string) (models.BiasLabel, error) {
	return models.BiasCenter, nil
}

func (f *fakeLLM) Summarize(_ context.Context, title, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summarized = content
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + title, nil
}

func (f *fakeLLM) GenerateInsights(_ context.Context, left, right string) (models.Insights, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left, f.right = left, right
	if f.err != nil {
		return models.Insights{}, f.err
	}
	return models.Insights{KeyTakeawayLeft: "L", KeyTakeawayRight: "R"}, nil
}

func (f *fakeLLM) Chat(_ context.Context, articleContext string, history []models.ChatMessage, _ string) (models.ChatReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatContext, f.history = articleContext, history
	if f.err != nil {
		return models.ChatReply{}, f.err
	}
	return models.ChatReply{Reply: "ok", Suggestions: []string{"more?"}}, nil
}

type fakeFetcher struct {
	text string
	err  error
}

func (f fakeFetcher) FetchFullText(context.Context, string) (string, error) { return f.text, f.err }

func seed(t *testing.T, articles ...models.Article) (*store.Memory, string) {
	t.Helper()
	ctx := context.Background()
	cache := store.NewMemory()
	id, err := cache.EnsureSession(ctx, "")
	if err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	for _, a := range articles {
		if a.SentimentScore == nil {
			a.SentimentScore = models.Float64(0)
		}
		if err := cache.UpsertArticle(ctx, id, a); err != nil {
			t.Fatalf("UpsertArticle: %v", err)
		}
	}
	return cache, id
}

func TestSummarize(t *testing.T) {
	cnn := models.Article{URL: "https://cnn.com/a", Source: models.SourceCNN, Title: "Budget", Content: "short"}
	post := models.Article{URL: "https://reddit.com/r/x/1", Source: models.SourceReddit, Title: "Thread", Content: "post body"}
	cache, id := seed(t, cnn, post)

	t.Run("news uses full text", func(t *testing.T) {
		llm := &fakeLLM{}
		svc := New(cache, llm, WithFetcher(fakeFetcher{text: "full   article text"}))
		got, err := svc.Summarize(context.Background(), id, cnn.URL)
		if err != nil {
			t.Fatalf("Summarize: %v", err)
		}
		if got.Summary != "summary of Budget" || got.Source != models.SourceCNN {
			t.Fatalf("unexpected summary %+v", got)
		}
		if llm.summarized != "full article text" {
			t.Fatalf("expected fetched text, got %q", llm.summarized)
		}
	})

	t.Run("fetch failure falls back", func(t *testing.T) {
		llm := &fakeLLM{}
		svc := New(cache, llm, WithFetcher(fakeFetcher{err: errors.New("403")}))
		if _, err := svc.Summarize(context.Background(), id, cnn.URL); err != nil {
			t.Fatalf("Summarize: %v", err)
		}
		if llm.summarized != "short" {
			t.Fatalf("expected cached content, got %q", llm.summarized)
		}
	})

	t.Run("social never fetched", func(t *testing.T) {
		llm := &fakeLLM{}
		svc := New(cache, llm, WithFetcher(fakeFetcher{text: "should not be used"}))
		if _, err := svc.Summarize(context.Background(), id, post.URL); err != nil {
			t.Fatalf("Summarize: %v", err)
		}
		if llm.summarized != "post body" {
			t.Fatalf("unexpected content %q", llm.summarized)
		}
	})

	t.Run("not found", func(t *testing.T) {
		svc := New(cache, &fakeLLM{})
		if _, err := svc.Summarize(context.Background(), "missing", cnn.URL); !errors.Is(err, models.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
		if _, err := svc.Summarize(context.Background(), id, "https://cnn.com/nope"); !errors.Is(err, models.ErrArticleNotFound) {
			t.Fatalf("expected ErrArticleNotFound, got %v", err)
		}
		if _, err := svc.Summarize(context.Background(), id, ""); !models.IsValidation(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestGenerateInsights(t *testing.T) {
	left := models.Article{URL: "https://cbsnews.com/a", Source: models.SourceCBS, Title: "Left take", Content: "left body", Bias: models.Bias(models.BiasLeanLeft)}
	right := models.Article{URL: "https://foxnews.com/b", Source: models.SourceFox, Title: "Right take", Content: "right body", Bias: models.Bias(models.BiasRight)}
	center := models.Article{URL: "https://abcnews.go.com/c", Source: models.SourceABC, Title: "Center", Content: "center body", Bias: models.Bias(models.BiasCenter)}
	cache, id := seed(t, left, right, center)

	llm := &fakeLLM{}
	svc := New(cache, llm)
	refs := []InsightRef{
		{URL: left.URL},
		{URL: right.URL, Bias: "right"},
		{URL: center.URL, Bias: "lean left"},
		{URL: "https://cnn.com/unknown", Bias: "left"},
	}
	out, err := svc.GenerateInsights(context.Background(), id, refs)
	if err != nil {
		t.Fatalf("GenerateInsights: %v", err)
	}
	if out.KeyTakeawayLeft != "L" || out.KeyTakeawayRight != "R" {
		t.Fatalf("unexpected insights %+v", out)
	}
	if !strings.Contains(llm.left, "Left take\nleft body") || !strings.Contains(llm.left, "Center\ncenter body") {
		t.Fatalf("unexpected left context %q", llm.left)
	}
	if !strings.Contains(llm.left, "\n\n") {
		t.Fatalf("expected contexts joined by a blank line: %q", llm.left)
	}
	if strings.Contains(llm.right, "Left take") || !strings.Contains(llm.right, "Right take") {
		t.Fatalf("unexpected right context %q", llm.right)
	}

	if _, err := svc.GenerateInsights(context.Background(), "missing", refs); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.GenerateInsights(context.Background(), id, []InsightRef{{URL: "https://cnn.com/unknown"}}); !models.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChat(t *testing.T) {
	articles := []models.Article{
		{URL: "https://cnn.com/1", Source: models.SourceCNN, Title: "Senate passes budget", Content: "The senate voted on the budget bill"},
		{URL: "https://foxnews.com/2", Source: models.SourceFox, Title: "Storm hits coast", Content: "Hurricane damage along the coast"},
		{URL: "https://reddit.com/r/w/3", Source: models.SourceReddit, Title: "Weather thread", Content: "hurricane photos"},
	}
	cache, id := seed(t, articles...)

	llm := &fakeLLM{}
	svc := New(cache, llm)
	history := []models.ChatMessage{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}
	reply, err := svc.Chat(context.Background(), ChatRequest{SessionID: id, Message: "what about the hurricane?", History: history})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Reply != "ok" || len(llm.history) != 2 {
		t.Fatalf("unexpected reply %+v history=%d", reply, len(llm.history))
	}
	if !strings.Contains(llm.chatContext, "Storm hits coast") || strings.Contains(llm.chatContext, "Senate passes budget") {
		t.Fatalf("expected retrieval to favour hurricane articles, got %q", llm.chatContext)
	}

	if _, err := svc.Chat(context.Background(), ChatRequest{SessionID: id, Message: "zzzz"}); err != nil {
		t.Fatalf("Chat without hits: %v", err)
	}
	if !strings.Contains(llm.chatContext, "Senate passes budget") {
		t.Fatalf("expected fallback to leading articles, got %q", llm.chatContext)
	}

	if _, err := svc.Chat(context.Background(), ChatRequest{SessionID: id, Message: "  "}); !models.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Chat(context.Background(), ChatRequest{SessionID: "missing", Message: "hi"}); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
