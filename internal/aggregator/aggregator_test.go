package aggregator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/enrich"
	"github.com/mohammad-safakhou/newslens/internal/normalize"
	"github.com/mohammad-safakhou/newslens/internal/store"
	"github.com/mohammad-safakhou/newslens/models"
	"github.com/mohammad-safakhou/newslens/news"
)

type fakeSource struct {
	name  models.SourceName
	items []news.RawItem
	err   error
	delay time.Duration
	calls int
}

func (f *fakeSource) Name() models.SourceName { return f.name }

func (f *fakeSource) Search(ctx context.Context, _ string, _ int) ([]news.RawItem, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.items, f.err
}

type labelClassifier struct{ fail bool }

func (c labelClassifier) ClassifyBias(context.Context, string, string) (models.BiasLabel, error) {
	if c.fail {
		return "", errors.New("classifier down")
	}
	return models.BiasCenter, nil
}

// brokenCache fails every operation.
type brokenCache struct{ store.Cache }

var errDown = &models.StorageError{Op: "test", Err: errors.New("connection refused")}

func (brokenCache) EnsureSession(context.Context, string) (string, error) { return "", errDown }
func (brokenCache) UpsertArticle(context.Context, string, models.Article) error {
	return errDown
}

func aggConfig() config.AggregatorConfig {
	return config.AggregatorConfig{
		RequestTimeout:   5 * time.Second,
		Limit:            20,
		MaxNews:          50,
		MaxLeft:          20,
		MaxRight:         20,
		MaxContentLength: 3000,
	}
}

func newsItems(n int, domain string) []news.RawItem {
	out := make([]news.RawItem, n)
	for i := range out {
		out[i] = news.RawItem{
			Source:      models.SourceNewsAPI,
			URL:         fmt.Sprintf("https://www.%s/story/%d", domain, i),
			Title:       fmt.Sprintf("Election story %d", i),
			Text:        "Voters head to the polls in a close and hopeful race.",
			PublishedAt: "2024-01-01T00:00:00Z",
		}
	}
	return out
}

func socialItems(n int, src models.SourceName) []news.RawItem {
	out := make([]news.RawItem, n)
	for i := range out {
		out[i] = news.RawItem{
			Source:      src,
			URL:         fmt.Sprintf("https://%s.example/post/%d", src, i),
			Title:       "Election thoughts",
			Text:        "This election is a disaster",
			Score:       models.Int(i),
			CreatedUnix: 1704067200.9,
		}
	}
	return out
}

func newAggregator(cache store.Cache, clf labelClassifier, cfg config.AggregatorConfig, sources ...*fakeSource) *Aggregator {
	eng := enrich.New(config.EnrichmentConfig{BiasConcurrency: 4, BiasTimeout: time.Second, MinContentLength: 0}, clf)
	opts := make([]Option, 0, len(sources))
	for _, s := range sources {
		opts = append(opts, WithSource(s, time.Second, 0))
	}
	return New(cfg, normalize.New(cfg.MaxContentLength, 0), eng, cache, opts...)
}

func TestSearchElectionScenario(t *testing.T) {
	items := append(newsItems(3, "cnn.com"), newsItems(2, "foxnews.com")...)
	newsSrc := &fakeSource{name: models.SourceNewsAPI, items: items}
	reddit := &fakeSource{name: models.SourceReddit, items: socialItems(4, models.SourceReddit)}
	bluesky := &fakeSource{name: models.SourceBluesky, items: socialItems(2, models.SourceBluesky)}
	cache := store.NewMemory()

	res, err := newAggregator(cache, labelClassifier{}, aggConfig(), newsSrc, reddit, bluesky).
		Search(context.Background(), SearchRequest{Query: "election"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.SessionID == "" {
		t.Fatalf("expected session id")
	}
	if len(res.Articles) != 11 {
		t.Fatalf("expected 11 articles, got %d", len(res.Articles))
	}
	for _, a := range res.Articles {
		if a.SentimentScore == nil {
			t.Fatalf("missing sentiment on %s", a.URL)
		}
		if models.IsNewsOutlet(a.Source) && a.Bias == nil {
			t.Fatalf("news article without bias: %s", a.URL)
		}
		if models.IsSocial(a.Source) && a.Bias != nil {
			t.Fatalf("social article with bias: %s", a.URL)
		}
	}
	stored, err := cache.ListArticles(context.Background(), res.SessionID, store.ListFilter{})
	if err != nil || len(stored) != 11 {
		t.Fatalf("expected 11 cached articles, got %d (%v)", len(stored), err)
	}
	got, found, _ := cache.GetArticle(context.Background(), res.SessionID, "https://www.cnn.com/story/0")
	if !found || got.Source != models.SourceCNN || got.PublishedAt != 1704067200 {
		t.Fatalf("unexpected cached article %+v", got)
	}
}

func TestSearchPartialSourceFailure(t *testing.T) {
	newsSrc := &fakeSource{name: models.SourceNewsAPI, err: errors.New("quota")}
	reddit := &fakeSource{name: models.SourceReddit, items: socialItems(3, models.SourceReddit)}
	bluesky := &fakeSource{name: models.SourceBluesky, delay: 3 * time.Second}

	res, err := newAggregator(store.NewMemory(), labelClassifier{}, aggConfig(), newsSrc, reddit, bluesky).
		Search(context.Background(), SearchRequest{Query: "election"})
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if len(res.Articles) != 3 || res.SessionID == "" {
		t.Fatalf("expected 3 reddit articles and a session, got %d %q", len(res.Articles), res.SessionID)
	}
	if len(res.SourceErrors) != 2 {
		t.Fatalf("expected 2 source errors, got %v", res.SourceErrors)
	}
	for _, e := range res.SourceErrors {
		var se *models.SourceError
		if !errors.As(e, &se) {
			t.Fatalf("expected SourceError, got %T", e)
		}
	}
}

func TestSearchAllSourcesFailWithWorkingStorage(t *testing.T) {
	down := &fakeSource{name: models.SourceReddit, err: errors.New("503")}
	res, err := newAggregator(store.NewMemory(), labelClassifier{}, aggConfig(), down).
		Search(context.Background(), SearchRequest{Query: "election"})
	if err != nil {
		t.Fatalf("expected empty result, got error %v", err)
	}
	if res.SessionID == "" || len(res.Articles) != 0 {
		t.Fatalf("expected valid session and no articles: %+v", res)
	}
}

func TestSearchAllSourcesFailAndStorageDown(t *testing.T) {
	down := &fakeSource{name: models.SourceReddit, err: errors.New("503")}
	_, err := newAggregator(brokenCache{}, labelClassifier{}, aggConfig(), down).
		Search(context.Background(), SearchRequest{Query: "election"})
	if !errors.Is(err, ErrUnavailable) || !models.IsStorage(err) {
		t.Fatalf("expected unavailable storage error, got %v", err)
	}
}

func TestSearchPersistFailuresAreReported(t *testing.T) {
	reddit := &fakeSource{name: models.SourceReddit, items: socialItems(2, models.SourceReddit)}
	res, err := newAggregator(brokenCache{}, labelClassifier{}, aggConfig(), reddit).
		Search(context.Background(), SearchRequest{Query: "election", SessionID: "given"})
	if err != nil {
		t.Fatalf("a working source keeps the call successful: %v", err)
	}
	if res.SessionID != "given" || len(res.Articles) != 0 || len(res.PersistErrors) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	src := &fakeSource{name: models.SourceReddit}
	cache := store.NewMemory()
	_, err := newAggregator(cache, labelClassifier{}, aggConfig(), src).
		Search(context.Background(), SearchRequest{Query: "   "})
	if !models.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if src.calls != 0 {
		t.Fatalf("no source may be called for an invalid query")
	}
}

func TestSearchCompletionOrder(t *testing.T) {
	slow := &fakeSource{name: models.SourceReddit, items: socialItems(2, models.SourceReddit), delay: 150 * time.Millisecond}
	fast := &fakeSource{name: models.SourceBluesky, items: socialItems(2, models.SourceBluesky)}
	res, err := newAggregator(store.NewMemory(), labelClassifier{}, aggConfig(), slow, fast).
		Search(context.Background(), SearchRequest{Query: "election"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []models.SourceName{models.SourceBluesky, models.SourceBluesky, models.SourceReddit, models.SourceReddit}
	for i, a := range res.Articles {
		if a.Source != want[i] {
			t.Fatalf("position %d: got %s want %s", i, a.Source, want[i])
		}
	}
	if res.Articles[2].URL != "https://Reddit.example/post/0" {
		t.Fatalf("order within a source must be stable, got %s", res.Articles[2].URL)
	}
}

func TestSearchCapsAndDuplicates(t *testing.T) {
	cfg := aggConfig()
	cfg.MaxLeft = 2
	cfg.MaxRight = 1
	cfg.MaxNews = 3
	items := append(newsItems(4, "cnn.com"), newsItems(3, "nypost.com")...)
	dup := items[0]
	dup.Title = "Updated headline"
	items = append(items, dup, news.RawItem{Source: models.SourceNewsAPI, URL: "https://example.org/x", Title: "x"})
	src := &fakeSource{name: models.SourceNewsAPI, items: items}

	res, err := newAggregator(store.NewMemory(), labelClassifier{}, cfg, src).
		Search(context.Background(), SearchRequest{Query: "election", Limit: 100})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Articles) != 3 {
		t.Fatalf("expected 3 capped articles, got %d", len(res.Articles))
	}
	if res.Articles[0].URL != items[0].URL || res.Articles[0].Title != "Updated headline" {
		t.Fatalf("duplicate should keep first position with latest content: %+v", res.Articles[0])
	}
	if res.Articles[2].Source != models.SourceNYPost {
		t.Fatalf("expected right outlet after left cap, got %s", res.Articles[2].Source)
	}
}

func TestSearchClassificationFailuresKeepArticles(t *testing.T) {
	src := &fakeSource{name: models.SourceNewsAPI, items: newsItems(2, "cbsnews.com")}
	res, err := newAggregator(store.NewMemory(), labelClassifier{fail: true}, aggConfig(), src).
		Search(context.Background(), SearchRequest{Query: "election"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Articles) != 2 || len(res.EnrichErrors) != 2 {
		t.Fatalf("expected 2 articles and 2 enrich errors, got %d %d", len(res.Articles), len(res.EnrichErrors))
	}
	for _, a := range res.Articles {
		if a.Bias != nil {
			t.Fatalf("failed classification must leave bias unset")
		}
	}
}

func TestSearchReusesSession(t *testing.T) {
	cache := store.NewMemory()
	src := &fakeSource{name: models.SourceReddit, items: socialItems(1, models.SourceReddit)}
	agg := newAggregator(cache, labelClassifier{}, aggConfig(), src)
	first, err := agg.Search(context.Background(), SearchRequest{Query: "election"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	second, err := agg.Search(context.Background(), SearchRequest{Query: "election", SessionID: first.SessionID})
	if err != nil || second.SessionID != first.SessionID {
		t.Fatalf("expected reused session, got %q %v", second.SessionID, err)
	}
	stored, _ := cache.ListArticles(context.Background(), first.SessionID, store.ListFilter{})
	if len(stored) != 1 {
		t.Fatalf("repeat search must not duplicate rows, got %d", len(stored))
	}
}

// stalledClassifier never answers before its context ends.
type stalledClassifier struct{}

func (stalledClassifier) ClassifyBias(ctx context.Context, _, _ string) (models.BiasLabel, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSearchDeadlineDuringClassificationStillPersists(t *testing.T) {
	ctx := context.Background()
	cache, err := store.NewSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer cache.Close()

	cfg := aggConfig()
	cfg.RequestTimeout = 300 * time.Millisecond
	cfg.PersistTimeout = 5 * time.Second
	eng := enrich.New(config.EnrichmentConfig{BiasConcurrency: 4, BiasTimeout: 5 * time.Second}, stalledClassifier{})
	src := &fakeSource{name: models.SourceNewsAPI, items: newsItems(3, "cnn.com")}
	agg := New(cfg, normalize.New(cfg.MaxContentLength, 0), eng, cache, WithSource(src, time.Second, 0))

	res, err := agg.Search(ctx, SearchRequest{Query: "election"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.PersistErrors) != 0 {
		t.Fatalf("unexpected persist errors: %v", res.PersistErrors)
	}
	if len(res.Articles) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(res.Articles))
	}
	for _, a := range res.Articles {
		if a.Bias != nil {
			t.Fatalf("interrupted classification must leave bias unset on %s", a.URL)
		}
	}
	stored, err := cache.ListArticles(ctx, res.SessionID, store.ListFilter{})
	if err != nil || len(stored) != 3 {
		t.Fatalf("expected 3 stored rows, got %d (%v)", len(stored), err)
	}
}
