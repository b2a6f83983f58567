package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// FetcherConfig configures outlet full-text retrieval.
type FetcherConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxChars      int           `mapstructure:"max_chars"`
	Extractor     string        `mapstructure:"extractor"` // readability or trafilatura
	RespectRobots bool          `mapstructure:"respect_robots"`
	UserAgent     string        `mapstructure:"user_agent"`
	PerDomainRPS  float64       `mapstructure:"per_domain_rps"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	// Disallow lists outlet hosts that are never fetched.
	Disallow []string `mapstructure:"disallow"`
	// Render lists outlet hosts fetched through a headless browser.
	Render        []string      `mapstructure:"render"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
}

// Normalize cleans host lists and removes duplicates.
func (c FetcherConfig) Normalize() FetcherConfig {
	norm := c
	norm.Disallow = sanitizeDomainList(norm.Disallow)
	norm.Render = sanitizeDomainList(norm.Render)
	norm.Extractor = strings.ToLower(strings.TrimSpace(norm.Extractor))
	return norm
}

// Validate ensures the host lists do not conflict and limits are sane.
func (c FetcherConfig) Validate() error {
	norm := c.Normalize()
	switch norm.Extractor {
	case "", "readability", "trafilatura":
	default:
		return fmt.Errorf("fetcher.extractor %q not supported", c.Extractor)
	}
	if norm.MaxChars < 1 {
		return fmt.Errorf("fetcher.max_chars must be >= 1")
	}
	if norm.PerDomainRPS < 0 {
		return fmt.Errorf("fetcher.per_domain_rps must be >= 0")
	}
	disallow := make(map[string]struct{}, len(norm.Disallow))
	for _, host := range norm.Disallow {
		disallow[host] = struct{}{}
	}
	for _, host := range norm.Render {
		if _, ok := disallow[host]; ok {
			return fmt.Errorf("fetcher conflict: host %q marked disallow and render", host)
		}
	}
	return nil
}

// IsDisallowed reports whether host is listed in Disallow.
func (c FetcherConfig) IsDisallowed(host string) bool {
	return containsHost(c.Disallow, host)
}

// ShouldRender reports whether host is listed in Render.
func (c FetcherConfig) ShouldRender(host string) bool {
	return containsHost(c.Render, host)
}

func containsHost(list []string, host string) bool {
	host = normalizeHost(host)
	for _, h := range list {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func sanitizeDomainList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		host := normalizeHost(raw)
		if host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if u, err := url.Parse(value); err == nil && u.Host != "" {
			return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		}
	}
	return strings.TrimPrefix(value, "www.")
}
