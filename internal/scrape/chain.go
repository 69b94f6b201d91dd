package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bizcrawl/internal/model"
)

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	exclude  *Excluder
	scrapers []Scraper
}

// NewChain creates a Chain. exclude may be nil.
func NewChain(exclude *Excluder, scrapers ...Scraper) *Chain {
	return &Chain{exclude: exclude, scrapers: scrapers}
}

// Name identifies the chain in logs.
func (c *Chain) Name() string { return "chain" }

// Supports reports whether any scraper in the chain accepts url.
func (c *Chain) Supports(url string) bool {
	if c.exclude.Excluded(url) {
		return false
	}
	for _, s := range c.scrapers {
		if s.Supports(url) {
			return true
		}
	}
	return false
}

// Fetch tries each scraper in order and returns the first response. The
// error of the last failing scraper is returned when all fail, so callers
// can still classify it as transient or permanent.
func (c *Chain) Fetch(ctx context.Context, targetURL string) (*model.FetchResponse, error) {
	if c.exclude.Excluded(targetURL) {
		return nil, eris.Errorf("scrape: url excluded: %s", targetURL)
	}

	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		resp, err := s.Fetch(ctx, targetURL)
		if err == nil && resp != nil {
			return resp, nil
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}
