package main

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bizcrawl/internal/browser"
	"github.com/sells-group/bizcrawl/internal/config"
	"github.com/sells-group/bizcrawl/internal/enrich"
	"github.com/sells-group/bizcrawl/internal/scrape"
)

// newFetcher builds the plain-HTTP fetcher used for contact pages and by
// the http render engine.
func newFetcher() (scrape.Scraper, error) {
	timeout := time.Duration(cfg.Enrich.TimeoutSecs) * time.Second
	local := scrape.NewLocalScraper(cfg.Browser.UserAgent, timeout)
	exclude := scrape.NewExcluder(scrape.DefaultExcludePatterns)

	switch cfg.Enrich.Fetcher {
	case config.FetcherLocal:
		return scrape.NewChain(exclude, local), nil
	case config.FetcherColly, config.FetcherChain:
		c, err := scrape.NewCollyScraper(scrape.CollyOptions{
			UserAgent: cfg.Browser.UserAgent,
			Timeout:   timeout,
		})
		if err != nil {
			return nil, eris.Wrap(err, "init colly scraper")
		}
		if cfg.Enrich.Fetcher == config.FetcherColly {
			return scrape.NewChain(exclude, c), nil
		}
		return scrape.NewChain(exclude, local, c), nil
	default:
		return nil, eris.Errorf("unknown enrich fetcher %q", cfg.Enrich.Fetcher)
	}
}

func newEnricher(fetcher enrich.Fetcher) (*enrich.Enricher, error) {
	opts, err := cfg.EnrichOptions()
	if err != nil {
		return nil, err
	}
	return enrich.New(fetcher, opts), nil
}

func newEngine(fetcher browser.Fetcher) (browser.Engine, error) {
	engine, err := browser.New(cfg.BrowserOptions(), fetcher)
	if err != nil {
		return nil, eris.Wrapf(err, "start %s engine", cfg.Browser.Engine)
	}
	return engine, nil
}
