package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/models"
)

const paragraph = "The senate passed the measure late on Tuesday after a long debate over spending priorities and oversight."

func articlePage() string {
	var b strings.Builder
	b.WriteString("<html><head><title>Budget vote</title><script>var x = 1;</script></head><body><nav>Home | World</nav><article><h1>Budget vote</h1>")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, "<p>%s Paragraph %d.</p>", paragraph, i)
	}
	b.WriteString("</article><footer>Copyright</footer></body></html>")
	return b.String()
}

func testConfig() config.FetcherConfig {
	return config.FetcherConfig{
		Timeout:       5 * time.Second,
		MaxChars:      3000,
		Extractor:     "readability",
		RespectRobots: true,
		UserAgent:     "newslens-test",
		MaxConcurrent: 2,
		CacheTTL:      time.Minute,
	}
}

func allowAll(string) bool { return true }

func TestFetchFullTextExtractsAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
		case "/story":
			hits.Add(1)
			if ua := r.Header.Get("User-Agent"); ua != "newslens-test" {
				t.Errorf("unexpected user agent %q", ua)
			}
			fmt.Fprint(w, articlePage())
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f, err := New(testConfig(), WithHostFilter(allowAll))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	text, err := f.FetchFullText(ctx, srv.URL+"/story#comments")
	if err != nil {
		t.Fatalf("FetchFullText: %v", err)
	}
	if !strings.Contains(text, "senate passed the measure") {
		t.Fatalf("missing article text: %q", text)
	}
	if strings.Contains(text, "var x") {
		t.Fatalf("script leaked into text: %q", text)
	}
	if _, err := f.FetchFullText(ctx, srv.URL+"/story"); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected cached second fetch, got %d hits", hits.Load())
	}
}

func TestFetchFullTextRespectsRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		t.Errorf("page should not be requested: %s", r.URL.Path)
	}))
	defer srv.Close()

	f, err := New(testConfig(), WithHostFilter(allowAll))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = f.FetchFullText(context.Background(), srv.URL+"/private/story")
	var fe *models.FetchError
	if !errors.As(err, &fe) || !errors.Is(err, errRobots) {
		t.Fatalf("expected robots FetchError, got %v", err)
	}
}

func TestFetchFullTextErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/gone":
			w.WriteHeader(http.StatusForbidden)
		case "/empty":
			fmt.Fprint(w, "<html><body><script>1</script></body></html>")
		}
	}))
	defer srv.Close()

	f, err := New(testConfig(), WithHostFilter(allowAll))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	_, err = f.FetchFullText(ctx, srv.URL+"/gone")
	var fe *models.FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusForbidden {
		t.Fatalf("expected 403 FetchError, got %v", err)
	}
	if _, err := f.FetchFullText(ctx, srv.URL+"/empty"); !errors.Is(err, errUnparseable) {
		t.Fatalf("expected unparseable error, got %v", err)
	}
	if _, err := f.FetchFullText(ctx, "ftp://cnn.com/x"); !errors.As(err, &fe) {
		t.Fatalf("expected invalid url error, got %v", err)
	}
}

func TestFetchFullTextOnlyKnownOutlets(t *testing.T) {
	cfg := testConfig()
	cfg.Disallow = []string{"oann.com"}
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := f.FetchFullText(ctx, "https://example.org/story"); !errors.Is(err, errHostNotAllowed) {
		t.Fatalf("expected unknown host rejection, got %v", err)
	}
	if _, err := f.FetchFullText(ctx, "https://www.oann.com/story"); !errors.Is(err, errDisallowed) {
		t.Fatalf("expected disallow rejection, got %v", err)
	}
}

type stubRenderer struct {
	calls atomic.Int32
	html  string
}

func (s *stubRenderer) Render(_ context.Context, _ string) (string, error) {
	s.calls.Add(1)
	return s.html, nil
}

func TestFetchFullTextRendersConfiguredHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		t.Errorf("rendered host should not be fetched directly")
	}))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)

	cfg := testConfig()
	cfg.Extractor = "trafilatura"
	cfg.Render = []string{u.Hostname()}
	r := &stubRenderer{html: articlePage()}
	f, err := New(cfg, WithHostFilter(allowAll), WithRenderer(r))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := f.FetchFullText(context.Background(), srv.URL+"/story")
	if err != nil {
		t.Fatalf("FetchFullText: %v", err)
	}
	if r.calls.Load() != 1 || !strings.Contains(text, "senate passed") {
		t.Fatalf("expected rendered text, calls=%d text=%q", r.calls.Load(), text)
	}
}

func TestFetchFullTextTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, articlePage())
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxChars = 40
	f, err := New(cfg, WithHostFilter(allowAll))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := f.FetchFullText(context.Background(), srv.URL+"/story")
	if err != nil {
		t.Fatalf("FetchFullText: %v", err)
	}
	if n := len([]rune(text)); n > 40 {
		t.Fatalf("expected at most 40 runes, got %d", n)
	}
}

func TestParagraphExtractorPrefersArticle(t *testing.T) {
	html := `<html><body><p>sidebar</p><article><p>one</p><p>two</p></article></body></html>`
	text, err := ParagraphExtractor{}.Extract([]byte(html), nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "one\ntwo" {
		t.Fatalf("unexpected text %q", text)
	}
}
