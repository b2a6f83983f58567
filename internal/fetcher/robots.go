package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"

	"github.com/mohammad-safakhou/newslens/internal/helpers"
)

const (
	robotsMaxBytes      = 512 << 10
	defaultCrawlDelay   = time.Second
	maxCrawlDelay       = 10 * time.Second
	robotsCacheDuration = 24 * time.Hour
)

// robotsChecker caches parsed robots.txt per origin.
type robotsChecker struct {
	cache     *cache.Cache
	userAgent string
	client    *http.Client
}

func newRobotsChecker(userAgent string, client *http.Client) *robotsChecker {
	return &robotsChecker{
		cache:     cache.New(robotsCacheDuration, time.Hour),
		userAgent: userAgent,
		client:    client,
	}
}

// canFetch reports whether the page may be fetched and the crawl delay to
// honour. Unreachable robots files allow fetching.
func (rc *robotsChecker) canFetch(ctx context.Context, u *url.URL) (bool, time.Duration, error) {
	origin := u.Scheme + "://" + u.Host
	if cached, ok := rc.cache.Get(origin); ok {
		return rc.test(cached.(*robotstxt.RobotsData), u)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return false, 0, fmt.Errorf("robots request: %w", err)
	}
	req.Header.Set("User-Agent", rc.userAgent)
	resp, err := rc.client.Do(req)
	if err != nil {
		return true, defaultCrawlDelay, nil
	}
	body, err := helpers.ReadAllAndClose(resp.Body, robotsMaxBytes)
	if err != nil {
		return true, defaultCrawlDelay, nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return true, defaultCrawlDelay, nil
	}
	rc.cache.Set(origin, data, cache.DefaultExpiration)
	return rc.test(data, u)
}

func (rc *robotsChecker) test(data *robotstxt.RobotsData, u *url.URL) (bool, time.Duration, error) {
	group := data.FindGroup(rc.userAgent)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	delay := defaultCrawlDelay
	if group.CrawlDelay > 0 {
		delay = group.CrawlDelay
	}
	if delay > maxCrawlDelay {
		delay = maxCrawlDelay
	}
	return group.Test(path), delay, nil
}
