package scrape

import (
	"context"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/resilience"
)

// CollyScraper fetches pages through a colly collector. Each Fetch runs on
// a clone so callbacks never leak between calls while the per-domain limit
// rule stays shared.
type CollyScraper struct {
	base *colly.Collector
}

// CollyOptions configures a CollyScraper.
type CollyOptions struct {
	UserAgent   string
	Timeout     time.Duration
	Delay       time.Duration
	RandomDelay time.Duration
	Parallelism int
}

// NewCollyScraper builds the base collector.
func NewCollyScraper(opts CollyOptions) (*CollyScraper, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 2
	}

	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(maxBodyBytes),
		colly.DetectCharset(),
	)
	c.SetRequestTimeout(opts.Timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       opts.Delay,
		RandomDelay: opts.RandomDelay,
		Parallelism: opts.Parallelism,
	}); err != nil {
		return nil, eris.Wrap(err, "colly: set limit rule")
	}
	return &CollyScraper{base: c}, nil
}

func (s *CollyScraper) Name() string             { return "colly" }
func (s *CollyScraper) Supports(url string) bool { return isHTTP(url) }

// Fetch visits targetURL and returns the decoded response.
func (s *CollyScraper) Fetch(ctx context.Context, targetURL string) (*model.FetchResponse, error) {
	c := s.base.Clone()
	c.Context = ctx

	var (
		resp     *model.FetchResponse
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		var header http.Header
		if r.Headers != nil {
			header = *r.Headers
		}
		if blocked, blockType := DetectBlock(r.StatusCode, header, r.Body); blocked {
			fetchErr = blockError("colly", blockType, r.StatusCode)
			return
		}
		resp = &model.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       string(r.Body),
			Source:     s.Name(),
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 300 {
			var header http.Header
			if r.Headers != nil {
				header = *r.Headers
			}
			if blocked, blockType := DetectBlock(r.StatusCode, header, r.Body); blocked {
				fetchErr = blockError("colly", blockType, r.StatusCode)
				return
			}
			fetchErr = resilience.StatusError("colly", r.StatusCode)
			return
		}
		fetchErr = eris.Wrap(err, "colly: fetch")
	})

	if err := c.Visit(targetURL); err != nil && fetchErr == nil {
		fetchErr = eris.Wrap(err, "colly: visit")
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if resp == nil {
		return nil, eris.Errorf("colly: no response for %s", targetURL)
	}
	return resp, nil
}
