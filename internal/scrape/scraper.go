// Package scrape fetches plain HTTP pages for the contact enricher. A Chain
// tries its scrapers in priority order and returns the first success.
package scrape

import (
	"context"
	"net/url"
	"strings"

	"github.com/sells-group/bizcrawl/internal/model"
)

// Scraper fetches a single URL.
type Scraper interface {
	Fetch(ctx context.Context, url string) (*model.FetchResponse, error)
	Name() string
	Supports(url string) bool
}

// DefaultUserAgent is sent by the HTTP scrapers unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (compatible; bizcrawl/1.0; +https://github.com/sells-group/bizcrawl)"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 512 * 1024

func isHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
