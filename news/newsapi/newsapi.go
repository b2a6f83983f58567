package newsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/helpers"
	"github.com/mohammad-safakhou/newslens/internal/logging"
	"github.com/mohammad-safakhou/newslens/models"
	"github.com/mohammad-safakhou/newslens/news"
)

const maxBodyBytes = 8 << 20

// rateLimitCodes are NewsAPI error codes that mean "try another key".
var rateLimitCodes = map[string]struct{}{
	"ratelimited":     {},
	"apikeyexhausted": {},
}

// Article is one NewsAPI result.
type Article struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

type response struct {
	Status       string    `json:"status"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	TotalResults int       `json:"totalResults"`
	Articles     []Article `json:"articles"`
}

// RateLimitError marks a response that should rotate the credential.
type RateLimitError struct {
	Status int
	Code   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("newsapi rate limited (status %d, code %q)", e.Status, e.Code)
}

// NewsAPI searches the fixed outlet domains through newsapi.org.
type NewsAPI struct {
	Endpoint   string
	Language   string
	SortBy     string
	PageSize   int
	Domains    string
	keys       *KeyRing
	httpClient *http.Client
	logger     *logrus.Entry
}

// New builds an adapter from configuration. httpClient may be nil.
func New(cfg config.NewsAPIConfig, httpClient *http.Client, logger logrus.FieldLogger) (*NewsAPI, error) {
	ring, err := NewKeyRing(cfg.Keys)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &NewsAPI{
		Endpoint:   cfg.Endpoint,
		Language:   cfg.Language,
		SortBy:     cfg.SortBy,
		PageSize:   pageSize,
		Domains:    news.Domains(),
		keys:       ring,
		httpClient: httpClient,
		logger:     logging.Component(logger, "newsapi"),
	}, nil
}

func (n *NewsAPI) Name() models.SourceName { return models.SourceNewsAPI }

// Search queries NewsAPI. When a key is rate limited the same request is
// retried with each remaining key once, in ring order.
func (n *NewsAPI) Search(ctx context.Context, query string, limit int) ([]news.RawItem, error) {
	pageSize := n.PageSize
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}
	params := url.Values{}
	params.Set("q", query)
	if n.Language != "" {
		params.Set("language", n.Language)
	}
	if n.SortBy != "" {
		params.Set("sortBy", n.SortBy)
	}
	if n.Domains != "" {
		params.Set("domains", n.Domains)
	}
	params.Set("pageSize", strconv.Itoa(pageSize))
	reqURL := fmt.Sprintf("%s?%s", n.Endpoint, params.Encode())

	start, _ := n.keys.Current()
	var lastErr error
	for attempt := 0; attempt < n.keys.Len(); attempt++ {
		idx, key := n.keys.At(start + attempt)
		articles, err := n.do(ctx, reqURL, key)
		if err == nil {
			return toRawItems(articles), nil
		}
		var rl *RateLimitError
		if !errors.As(err, &rl) {
			return nil, err
		}
		n.logger.WithFields(logrus.Fields{"key_index": idx, "code": rl.Code}).Warn("api key rate limited, rotating")
		n.keys.MarkLimited(idx)
		lastErr = err
	}
	return nil, fmt.Errorf("all %d api keys exhausted: %w", n.keys.Len(), lastErr)
}

func (n *NewsAPI) do(ctx context.Context, reqURL, key string) ([]Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Api-Key", key)
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}
	body, err := helpers.ReadAllAndClose(resp.Body, maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result response
	decodeErr := json.Unmarshal(body, &result)
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Status: resp.StatusCode, Code: result.Code}
	}
	if decodeErr == nil && result.Status == "error" {
		if _, ok := rateLimitCodes[strings.ToLower(result.Code)]; ok {
			return nil, &RateLimitError{Status: resp.StatusCode, Code: result.Code}
		}
		return nil, fmt.Errorf("newsapi error %s: %s", result.Code, result.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &news.StatusError{Status: resp.StatusCode, Body: helpers.Truncate(string(body), 200)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return result.Articles, nil
}

func toRawItems(articles []Article) []news.RawItem {
	items := make([]news.RawItem, 0, len(articles))
	for _, a := range articles {
		if strings.TrimSpace(a.URL) == "" {
			continue
		}
		text := a.Content
		if strings.TrimSpace(text) == "" {
			text = a.Description
		}
		items = append(items, news.RawItem{
			Source:      models.SourceNewsAPI,
			Outlet:      a.Source.Name,
			URL:         a.URL,
			Title:       a.Title,
			Text:        text,
			Author:      a.Author,
			PublishedAt: a.PublishedAt,
		})
	}
	return items
}
