package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/logging"
	"github.com/mohammad-safakhou/newslens/models"
)

const listingBody = `{"data":{"children":[
 {"data":{"id":"1","title":"Election thread","selftext":"","author":"u1","subreddit":"politics","score":42,"num_comments":7,"permalink":"/r/politics/comments/1/x/","created_utc":1704067200.0}},
 {"data":{"id":"2","title":"Discussion","selftext":"Some text","author":"u2","subreddit":"PoliticalDebate","score":3,"num_comments":1,"permalink":"/r/PoliticalDebate/comments/2/y/","created_utc":1704067260.5}}
]}}`

func newTestServer(t *testing.T, tokenCalls *atomic.Int32, rejectFirst bool) *httptest.Server {
	t.Helper()
	var searches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		n := tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.FormValue("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant type")
		}
		fmt.Fprintf(w, `{"access_token":"tok%d","token_type":"bearer","expires_in":3600}`, n)
	})
	mux.HandleFunc("/r/all/search", func(w http.ResponseWriter, r *http.Request) {
		n := searches.Add(1)
		if rejectFirst && n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") == "" || r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("missing auth headers")
		}
		if r.URL.Query().Get("q") != "election" || r.URL.Query().Get("limit") != "20" {
			t.Errorf("unexpected query %v", r.URL.Query())
		}
		fmt.Fprint(w, listingBody)
	})
	return httptest.NewServer(mux)
}

func newClient(srvURL string) *Client {
	return New(config.RedditConfig{
		ClientID:          "id",
		ClientSecret:      "secret",
		UserAgent:         "test-agent",
		TokenURL:          srvURL + "/api/v1/access_token",
		APIBase:           srvURL,
		Subreddit:         "all",
		Sort:              "relevance",
		RequestsPerMinute: 6000,
	}, nil, logging.Discard())
}

func TestSearch(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := newTestServer(t, &tokenCalls, false)
	defer srv.Close()

	c := newClient(srv.URL)
	items, err := c.Search(context.Background(), "election", 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	first := items[0]
	if first.Source != models.SourceReddit || first.URL != "https://reddit.com/r/politics/comments/1/x/" {
		t.Fatalf("unexpected item %+v", first)
	}
	if first.Text != linkPostText {
		t.Fatalf("expected link post marker, got %q", first.Text)
	}
	if first.Score == nil || *first.Score != 42 || first.Comments == nil || *first.Comments != 7 {
		t.Fatalf("unexpected engagement %+v", first)
	}
	if items[1].CreatedUnix != 1704067260.5 {
		t.Fatalf("unexpected created_utc %v", items[1].CreatedUnix)
	}

	// token is cached between searches
	if _, err := c.Search(context.Background(), "election", 20); err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if tokenCalls.Load() != 1 {
		t.Fatalf("expected cached token, got %d token calls", tokenCalls.Load())
	}
}

func TestSearchRefreshesRejectedToken(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := newTestServer(t, &tokenCalls, true)
	defer srv.Close()

	items, err := newClient(srv.URL).Search(context.Background(), "election", 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 2 || tokenCalls.Load() != 2 {
		t.Fatalf("expected refresh then success, items=%d tokens=%d", len(items), tokenCalls.Load())
	}
}

func TestSearchBadCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := newTestServer(t, &tokenCalls, false)
	defer srv.Close()

	c := newClient(srv.URL)
	c.clientSecret = "wrong"
	if _, err := c.Search(context.Background(), "election", 20); err == nil {
		t.Fatalf("expected token error")
	}
}

func TestSelfTextTruncated(t *testing.T) {
	long := make([]byte, 800)
	for i := range long {
		long[i] = 'a'
	}
	item := toRawItem(post{SelfText: string(long), Permalink: "/r/x/"})
	if len(item.Text) != maxSelfText {
		t.Fatalf("expected %d chars, got %d", maxSelfText, len(item.Text))
	}
}
