package enrich

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/normalize"
	"github.com/mohammad-safakhou/newslens/models"
)

type fakeClassifier struct {
	mu       sync.Mutex
	calls    map[string]int
	labels   map[string]models.BiasLabel
	fail     map[string]error
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newFakeClassifier() *fakeClassifier {
	return &fakeClassifier{calls: map[string]int{}, labels: map[string]models.BiasLabel{}, fail: map[string]error{}}
}

func (f *fakeClassifier) ClassifyBias(ctx context.Context, title, _ string) (models.BiasLabel, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.calls[title]++
	label, err := f.labels[title], f.fail[title]
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if label == "" {
		label = models.BiasCenter
	}
	return label, nil
}

func (f *fakeClassifier) count(title string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[title]
}

func enrichConfig() config.EnrichmentConfig {
	return config.EnrichmentConfig{BiasConcurrency: 3, BiasTimeout: time.Second, MinContentLength: 100}
}

func TestEnrichBiasScopedToNews(t *testing.T) {
	clf := newFakeClassifier()
	clf.labels["cnn"] = models.BiasLeanLeft
	clf.labels["fox"] = models.BiasRight
	clf.fail["nbc"] = errors.New("model unavailable")

	in := []models.Article{
		{URL: "https://cnn.com/1", Source: models.SourceCNN, Title: "cnn", Content: "Great progress on the bill"},
		{URL: "https://reddit.com/r/x/1", Source: models.SourceReddit, Title: "reddit", Content: "terrible news"},
		{URL: "https://foxnews.com/1", Source: models.SourceFox, Title: "fox"},
		{URL: "https://nbcnews.com/1", Source: models.SourceNBC, Title: "nbc"},
		{URL: "https://bsky.app/profile/a/post/1", Source: models.SourceBluesky, Title: "bluesky"},
	}
	out, errs := New(enrichConfig(), clf).Enrich(context.Background(), in)

	if len(out) != len(in) {
		t.Fatalf("expected %d articles, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i].URL != in[i].URL {
			t.Fatalf("order not preserved at %d", i)
		}
		if out[i].SentimentScore == nil || *out[i].SentimentScore < -1 || *out[i].SentimentScore > 1 {
			t.Fatalf("sentiment missing or out of range for %s", out[i].URL)
		}
		if out[i].Sentiment == "" {
			t.Fatalf("sentiment label missing for %s", out[i].URL)
		}
	}
	if out[0].BiasOrEmpty() != models.BiasLeanLeft || out[2].BiasOrEmpty() != models.BiasRight {
		t.Fatalf("unexpected news labels %q %q", out[0].BiasOrEmpty(), out[2].BiasOrEmpty())
	}
	if out[1].Bias != nil || out[4].Bias != nil {
		t.Fatalf("social articles must never carry bias")
	}
	if out[3].Bias != nil {
		t.Fatalf("failed classification must leave bias unset")
	}
	if clf.count("reddit") != 0 || clf.count("bluesky") != 0 {
		t.Fatalf("classifier called for social article")
	}
	if clf.count("cnn") != 1 || clf.count("fox") != 1 {
		t.Fatalf("expected exactly one call per news article")
	}
	if len(errs) != 1 {
		t.Fatalf("expected one classification error, got %v", errs)
	}
	var ce *models.ClassificationError
	if !errors.As(errs[0], &ce) || ce.URL != "https://nbcnews.com/1" {
		t.Fatalf("unexpected error %v", errs[0])
	}
	for _, a := range out {
		a.SessionID = "s"
		if err := a.Validate(); err != nil {
			t.Fatalf("enriched article invalid: %v", err)
		}
	}
}

func TestEnrichDoesNotMutateInput(t *testing.T) {
	in := []models.Article{{URL: "https://cnn.com/1", Source: models.SourceCNN, Title: "cnn"}}
	_, _ = New(enrichConfig(), newFakeClassifier()).Enrich(context.Background(), in)
	if in[0].SentimentScore != nil || in[0].Bias != nil {
		t.Fatalf("input slice was modified")
	}
}

func TestEnrichUnratedOnFailure(t *testing.T) {
	clf := newFakeClassifier()
	clf.fail["abc"] = errors.New("boom")
	cfg := enrichConfig()
	cfg.UnratedOnFailure = true
	out, errs := New(cfg, clf).Enrich(context.Background(), []models.Article{
		{URL: "https://abcnews.go.com/1", Source: models.SourceABC, Title: "abc"},
	})
	if len(errs) != 1 || out[0].BiasOrEmpty() != models.BiasUnrated {
		t.Fatalf("expected unrated marker, got %q errs=%v", out[0].BiasOrEmpty(), errs)
	}
}

func TestEnrichBoundedConcurrency(t *testing.T) {
	clf := newFakeClassifier()
	clf.delay = 20 * time.Millisecond
	var in []models.Article
	for i := 0; i < 12; i++ {
		in = append(in, models.Article{URL: "https://cnn.com/" + string(rune('a'+i)), Source: models.SourceCNN, Title: "t"})
	}
	out, errs := New(enrichConfig(), clf).Enrich(context.Background(), in)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs)
	}
	if peak := clf.peak.Load(); peak > 3 {
		t.Fatalf("expected at most 3 concurrent calls, saw %d", peak)
	}
	for _, a := range out {
		if a.Bias == nil {
			t.Fatalf("expected bias on %s", a.URL)
		}
	}
}

func TestEnrichCancelledContextKeepsArticles(t *testing.T) {
	clf := newFakeClassifier()
	clf.delay = time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out, errs := New(enrichConfig(), clf).Enrich(ctx, []models.Article{
		{URL: "https://nypost.com/1", Source: models.SourceNYPost, Title: "post"},
		{URL: "https://reddit.com/1", Source: models.SourceReddit, Title: "r"},
	})
	if len(out) != 2 || out[0].Bias != nil || out[0].SentimentScore == nil {
		t.Fatalf("expected article kept without bias, got %+v", out[0])
	}
	if len(errs) != 1 {
		t.Fatalf("expected one classification error, got %v", errs)
	}
}

type fakeFetcher struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) FetchFullText(context.Context, string) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

func TestEnrichFetchesShortNewsContent(t *testing.T) {
	full := strings.Repeat("Lawmakers approved the plan. ", 20)
	fetcher := &fakeFetcher{text: "<p>" + full + "</p>"}
	clf := newFakeClassifier()
	eng := New(enrichConfig(), clf, WithFetcher(fetcher, normalize.New(3000, 100)))

	out, errs := eng.Enrich(context.Background(), []models.Article{
		{URL: "https://breitbart.com/1", Source: models.SourceBreitbart, Title: "short", Content: "snippet"},
		{URL: "https://cbsnews.com/1", Source: models.SourceCBS, Title: "long", Content: full},
		{URL: "https://reddit.com/1", Source: models.SourceReddit, Title: "r", Content: "x"},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs)
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("expected one fetch for the short news article, got %d", fetcher.calls.Load())
	}
	if !strings.HasPrefix(out[0].Content, "Lawmakers approved") {
		t.Fatalf("expected fetched content, got %q", out[0].Content)
	}

	fetcher.err = errors.New("403")
	fetcher.text = ""
	out, errs = eng.Enrich(context.Background(), []models.Article{
		{URL: "https://breitbart.com/2", Source: models.SourceBreitbart, Title: "short", Content: "snippet"},
	})
	if len(errs) != 0 || out[0].Content != "snippet" || out[0].Bias == nil {
		t.Fatalf("fetch failure should fall back to snippet: %+v errs=%v", out[0], errs)
	}
}

func TestEnrichWithoutClassifier(t *testing.T) {
	out, errs := New(enrichConfig(), nil).Enrich(context.Background(), []models.Article{
		{URL: "https://cnn.com/1", Source: models.SourceCNN},
	})
	if errs != nil || out[0].Bias != nil || out[0].SentimentScore == nil || *out[0].SentimentScore != 0 {
		t.Fatalf("unexpected result %+v %v", out[0], errs)
	}
}
