package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/helpers"
	"github.com/mohammad-safakhou/newslens/internal/logging"
	"github.com/mohammad-safakhou/newslens/models"
	"github.com/mohammad-safakhou/newslens/news"
)

const (
	maxBodyBytes   = 4 << 20
	maxSelfText    = 500
	linkPostText   = "[Link post]"
	tokenSafetyGap = 30 * time.Second
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
}

// Client searches Reddit with application-only OAuth.
type Client struct {
	clientID     string
	clientSecret string
	userAgent    string
	tokenURL     string
	apiBase      string
	subreddit    string
	sort         string

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Entry

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New builds a Reddit client. httpClient may be nil.
func New(cfg config.RedditConfig, httpClient *http.Client, logger logrus.FieldLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	subreddit := strings.TrimPrefix(strings.TrimSpace(cfg.Subreddit), "r/")
	if subreddit == "" {
		subreddit = "all"
	}
	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		userAgent:    cfg.UserAgent,
		tokenURL:     cfg.TokenURL,
		apiBase:      strings.TrimRight(cfg.APIBase, "/"),
		subreddit:    subreddit,
		sort:         cfg.Sort,
		httpClient:   httpClient,
		limiter:      rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 5),
		logger:       logging.Component(logger, "reddit"),
	}
}

func (c *Client) Name() models.SourceName { return models.SourceReddit }

// Search returns posts from the configured subreddit matching query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]news.RawItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("raw_json", "1")
	if c.sort != "" {
		params.Set("sort", c.sort)
	}
	if c.subreddit != "all" {
		params.Set("restrict_sr", "1")
	}
	reqURL := fmt.Sprintf("%s/r/%s/search?%s", c.apiBase, url.PathEscape(c.subreddit), params.Encode())

	body, status, err := c.get(ctx, reqURL, false)
	if err == nil && status == http.StatusUnauthorized {
		c.logger.Debug("token rejected, refreshing")
		body, status, err = c.get(ctx, reqURL, true)
	}
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &news.StatusError{Status: status, Body: helpers.Truncate(string(body), 200)}
	}

	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}
	items := make([]news.RawItem, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		items = append(items, toRawItem(child.Data))
	}
	return items, nil
}

func toRawItem(p post) news.RawItem {
	text := strings.TrimSpace(p.SelfText)
	if text == "" {
		text = linkPostText
	} else {
		text = helpers.Truncate(text, maxSelfText)
	}
	score, comments := p.Score, p.NumComments
	return news.RawItem{
		Source:      models.SourceReddit,
		URL:         "https://reddit.com" + p.Permalink,
		Title:       p.Title,
		Text:        text,
		Author:      p.Author,
		Subreddit:   p.Subreddit,
		CreatedUnix: p.CreatedUTC,
		Score:       &score,
		Comments:    &comments,
	}
}

func (c *Client) get(ctx context.Context, reqURL string, refresh bool) ([]byte, int, error) {
	token, err := c.accessToken(ctx, refresh)
	if err != nil {
		return nil, 0, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("reddit search: %w", err)
	}
	body, err := helpers.ReadAllAndClose(resp.Body, maxBodyBytes)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// accessToken returns the cached token, fetching a new one when missing,
// expired or when refresh is set.
func (c *Client) accessToken(ctx context.Context, refresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !refresh && c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reddit token: %w", err)
	}
	body, err := helpers.ReadAllAndClose(resp.Body, maxBodyBytes)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &news.StatusError{Status: resp.StatusCode, Body: helpers.Truncate(string(body), 200)}
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("reddit token: empty access token (%s)", tr.Error)
	}
	ttl := time.Duration(tr.ExpiresIn)*time.Second - tokenSafetyGap
	if ttl <= 0 {
		ttl = time.Minute
	}
	c.token = tr.AccessToken
	c.tokenExpiry = time.Now().Add(ttl)
	return c.token, nil
}
