package news

import (
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/newslens/models"
)

// Outlet is one fixed news outlet searched through the news API and scraped
// for full text.
type Outlet struct {
	Domain string
	Name   models.SourceName
	// Lean is the outlet's default editorial lean, used for per-side caps.
	Lean models.BiasLabel
}

var outlets = []Outlet{
	{Domain: "cnn.com", Name: models.SourceCNN, Lean: models.BiasLeft},
	{Domain: "cbsnews.com", Name: models.SourceCBS, Lean: models.BiasLeft},
	{Domain: "nbcnews.com", Name: models.SourceNBC, Lean: models.BiasLeft},
	{Domain: "abcnews.go.com", Name: models.SourceABC, Lean: models.BiasLeft},
	{Domain: "foxnews.com", Name: models.SourceFox, Lean: models.BiasRight},
	{Domain: "breitbart.com", Name: models.SourceBreitbart, Lean: models.BiasRight},
	{Domain: "nypost.com", Name: models.SourceNYPost, Lean: models.BiasRight},
	{Domain: "oann.com", Name: models.SourceOANN, Lean: models.BiasRight},
}

// Outlets returns the outlet table.
func Outlets() []Outlet {
	out := make([]Outlet, len(outlets))
	copy(out, outlets)
	return out
}

// Domains returns the comma-joined outlet domains as the news API expects.
func Domains() string {
	ds := make([]string, len(outlets))
	for i, o := range outlets {
		ds[i] = o.Domain
	}
	return strings.Join(ds, ",")
}

// MatchOutlet resolves the outlet serving rawURL, matching the host or any of
// its subdomains.
func MatchOutlet(rawURL string) (Outlet, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Outlet{}, false
	}
	return MatchHost(u.Hostname())
}

// MatchHost resolves an outlet by hostname.
func MatchHost(host string) (Outlet, bool) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if host == "" {
		return Outlet{}, false
	}
	for _, o := range outlets {
		if host == o.Domain || strings.HasSuffix(host, "."+o.Domain) {
			return o, true
		}
	}
	return Outlet{}, false
}

// OutletByName finds the outlet entry for an article source.
func OutletByName(name models.SourceName) (Outlet, bool) {
	for _, o := range outlets {
		if o.Name == name {
			return o, true
		}
	}
	return Outlet{}, false
}
