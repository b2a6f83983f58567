package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/helpers"
	"github.com/mohammad-safakhou/newslens/internal/logging"
	"github.com/mohammad-safakhou/newslens/models"
	"github.com/mohammad-safakhou/newslens/news"
)

const (
	maxBodyBytes = 4 << 20
	maxLimit     = 100
	titleLength  = 100
)

type sessionResponse struct {
	AccessJwt string `json:"accessJwt"`
	Handle    string `json:"handle"`
	DID       string `json:"did"`
}

type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type searchResponse struct {
	Posts []postView `json:"posts"`
}

type postView struct {
	URI    string `json:"uri"`
	Author struct {
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Record struct {
		Text      string `json:"text"`
		CreatedAt string `json:"createdAt"`
	} `json:"record"`
	LikeCount   int `json:"likeCount"`
	RepostCount int `json:"repostCount"`
	ReplyCount  int `json:"replyCount"`
	QuoteCount  int `json:"quoteCount"`
}

// Client searches Bluesky posts through the AT protocol XRPC API.
type Client struct {
	endpoint    string
	handle      string
	appPassword string
	sort        string
	httpClient  *http.Client
	logger      *logrus.Entry

	mu        sync.Mutex
	accessJwt string
}

// New builds a Bluesky client. httpClient may be nil.
func New(cfg config.BlueskyConfig, httpClient *http.Client, logger logrus.FieldLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		handle:      cfg.Handle,
		appPassword: cfg.AppPassword,
		sort:        cfg.Sort,
		httpClient:  httpClient,
		logger:      logging.Component(logger, "bluesky"),
	}
}

func (c *Client) Name() models.SourceName { return models.SourceBluesky }

// Search returns posts matching query. limit is capped at 100.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]news.RawItem, error) {
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	if c.sort != "" {
		params.Set("sort", c.sort)
	}
	reqURL := fmt.Sprintf("%s/app.bsky.feed.searchPosts?%s", c.endpoint, params.Encode())

	body, status, err := c.get(ctx, reqURL, false)
	if err == nil && isExpired(status, body) {
		c.logger.Debug("session expired, logging in again")
		body, status, err = c.get(ctx, reqURL, true)
	}
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &news.StatusError{Status: status, Body: helpers.Truncate(string(body), 200)}
	}
	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("failed to decode posts: %w", err)
	}
	items := make([]news.RawItem, 0, len(sr.Posts))
	for _, p := range sr.Posts {
		items = append(items, toRawItem(p))
	}
	return items, nil
}

func toRawItem(p postView) news.RawItem {
	handle := p.Author.Handle
	if handle == "" {
		handle = "unknown"
	}
	author := p.Author.DisplayName
	if author == "" {
		author = handle
	}
	rkey := p.URI
	if i := strings.LastIndex(rkey, "/"); i >= 0 {
		rkey = rkey[i+1:]
	}
	likes, reposts, replies, quotes := p.LikeCount, p.RepostCount, p.ReplyCount, p.QuoteCount
	return news.RawItem{
		Source:      models.SourceBluesky,
		URL:         fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, rkey),
		Title:       helpers.TruncateEllipsis(p.Record.Text, titleLength),
		Text:        p.Record.Text,
		Author:      author,
		Handle:      handle,
		PublishedAt: p.Record.CreatedAt,
		Likes:       &likes,
		Reposts:     &reposts,
		Replies:     &replies,
		Quotes:      &quotes,
	}
}

func isExpired(status int, body []byte) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	if status != http.StatusBadRequest {
		return false
	}
	var xe xrpcError
	return json.Unmarshal(body, &xe) == nil && (xe.Error == "ExpiredToken" || xe.Error == "InvalidToken")
}

func (c *Client) get(ctx context.Context, reqURL string, relogin bool) ([]byte, int, error) {
	token, err := c.session(ctx, relogin)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("bluesky search: %w", err)
	}
	body, err := helpers.ReadAllAndClose(resp.Body, maxBodyBytes)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// session logs in once and reuses the access token until it is rejected.
func (c *Client) session(ctx context.Context, relogin bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessJwt != "" && !relogin {
		return c.accessJwt, nil
	}
	payload, err := json.Marshal(map[string]string{"identifier": c.handle, "password": c.appPassword})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/com.atproto.server.createSession", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("bluesky login: %w", err)
	}
	body, err := helpers.ReadAllAndClose(resp.Body, maxBodyBytes)
	if err != nil {
		return "", fmt.Errorf("failed to read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &news.StatusError{Status: resp.StatusCode, Body: helpers.Truncate(string(body), 200)}
	}
	var sr sessionResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to decode session: %w", err)
	}
	if sr.AccessJwt == "" {
		return "", fmt.Errorf("bluesky login: empty access token")
	}
	c.accessJwt = sr.AccessJwt
	return c.accessJwt, nil
}
