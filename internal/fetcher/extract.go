package fetcher

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
)

// Extractor pulls the main article text out of an HTML page.
type Extractor interface {
	Extract(html []byte, pageURL *url.URL) (string, error)
}

// NewExtractor returns the extractor named in configuration.
func NewExtractor(name string) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "readability":
		return ReadabilityExtractor{}, nil
	case "trafilatura":
		return TrafilaturaExtractor{}, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", name)
	}
}

// ReadabilityExtractor uses go-readability.
type ReadabilityExtractor struct{}

func (ReadabilityExtractor) Extract(html []byte, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(html), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	return article.TextContent, nil
}

// TrafilaturaExtractor uses go-trafilatura.
type TrafilaturaExtractor struct{}

func (TrafilaturaExtractor) Extract(html []byte, pageURL *url.URL) (string, error) {
	result, err := trafilatura.Extract(bytes.NewReader(html), trafilatura.Options{OriginalURL: pageURL})
	if err != nil {
		return "", fmt.Errorf("trafilatura: %w", err)
	}
	if result == nil {
		return "", nil
	}
	return result.ContentText, nil
}

// ParagraphExtractor joins <p> elements, preferring those inside <article>.
type ParagraphExtractor struct{}

func (ParagraphExtractor) Extract(html []byte, _ *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("goquery: %w", err)
	}
	doc.Find("script, style, noscript, nav, footer, aside").Remove()
	for _, sel := range []string{"article p", "main p", "p"} {
		var parts []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if t := strings.TrimSpace(s.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}
	return "", nil
}
