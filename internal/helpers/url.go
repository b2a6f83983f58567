package helpers

import (
	"net"
	"net/url"
	"strings"
)

// trackingParams are dropped from canonical urls. Any utm_ prefixed key is
// dropped too.
var trackingParams = map[string]struct{}{
	"gclid":   {},
	"dclid":   {},
	"fbclid":  {},
	"msclkid": {},
	"igshid":  {},
	"cmpid":   {},
	"ocid":    {},
	"ftag":    {},
}

// CanonicalURL returns a copy of u suitable as a cache key: lowercase host,
// no default port, no fragment, no tracking parameters and sorted query.
func CanonicalURL(u *url.URL) string {
	c := *u
	c.User = nil
	c.Scheme = strings.ToLower(c.Scheme)
	host := strings.ToLower(c.Host)
	if h, port, err := net.SplitHostPort(host); err == nil {
		if (c.Scheme == "http" && port == "80") || (c.Scheme == "https" && port == "443") {
			host = h
		}
	}
	c.Host = host
	if c.Path == "" {
		c.Path = "/"
	}
	c.Fragment = ""
	c.RawFragment = ""

	q := c.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if _, drop := trackingParams[lower]; drop || strings.HasPrefix(lower, "utm_") {
			q.Del(key)
		}
	}
	c.RawQuery = q.Encode()
	c.ForceQuery = false
	return c.String()
}
