// Package enrich harvests contact details from a business website by
// visiting its home page and a fixed set of likely contact pages.
package enrich

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/bizcrawl/internal/contact"
	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/normalize"
	"github.com/sells-group/bizcrawl/internal/resilience"
)

// DefaultPaths are the contact page paths tried after the origin.
var DefaultPaths = []string{"/contact", "/contact-us", "/about", "/about-us"}

// Defaults applied to zero Options fields.
const (
	DefaultTimeout  = 15 * time.Second
	DefaultRetries  = 1
	DefaultMinDelay = 500 * time.Millisecond
	DefaultMaxDelay = 1500 * time.Millisecond
)

// ReasonInvalidOrigin is the Attempt reason for an unusable origin.
const ReasonInvalidOrigin = "invalid origin"

// Fetcher fetches a single page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*model.FetchResponse, error)
}

// Options configures an Enricher.
type Options struct {
	Paths    []string
	Timeout  time.Duration
	Retries  int
	MinDelay time.Duration
	MaxDelay time.Duration
	Stop     StopPolicy

	// Sleep waits between fetches. Nil sleeps on a timer that honours ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the stock enrichment settings.
func DefaultOptions() Options {
	return Options{
		Paths:    DefaultPaths,
		Timeout:  DefaultTimeout,
		Retries:  DefaultRetries,
		MinDelay: DefaultMinDelay,
		MaxDelay: DefaultMaxDelay,
		Stop:     StopOnEmail,
	}
}

// Attempt records one candidate page visit.
type Attempt struct {
	URL    string `json:"url"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Result is the outcome of enriching one website.
type Result struct {
	Bundle   model.ContactBundle `json:"bundle"`
	Attempts []Attempt           `json:"attempts"`
	Stopped  bool                `json:"stopped"`
}

// Enricher visits candidate pages of a website in order.
type Enricher struct {
	fetcher Fetcher
	opts    Options
}

// New creates an Enricher. Zero option fields take their defaults; a
// negative Retries means no retries.
func New(fetcher Fetcher, opts Options) *Enricher {
	if opts.Paths == nil {
		opts.Paths = DefaultPaths
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries == 0 {
		opts.Retries = DefaultRetries
	} else if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.MinDelay < 0 {
		opts.MinDelay = 0
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	if opts.Stop == nil {
		opts.Stop = StopOnEmail
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Enricher{fetcher: fetcher, opts: opts}
}

// Candidates returns the ordered, de-duplicated page URLs for origin: the
// origin itself, then every path resolved against it.
func (e *Enricher) Candidates(origin string) ([]string, bool) {
	root, ok := normalize.Origin(origin)
	if !ok {
		return nil, false
	}
	urls := make([]string, 0, 1+len(e.opts.Paths))
	urls = append(urls, root)
	for _, p := range e.opts.Paths {
		if u, ok := normalize.Resolve(root, p); ok {
			urls = append(urls, u)
		}
	}
	return normalize.UniqueBy(urls, normalize.URLKey), true
}

// Enrich fetches the candidate pages of origin and merges every contact
// found. Fetch failures are recorded in Attempts and never abort the
// remaining candidates. Enrich never returns an error.
func (e *Enricher) Enrich(ctx context.Context, origin string) Result {
	res := Result{Bundle: model.NewContactBundle(nil, nil, nil), Attempts: []Attempt{}}

	candidates, ok := e.Candidates(origin)
	if !ok {
		res.Attempts = append(res.Attempts, Attempt{URL: origin, Reason: ReasonInvalidOrigin})
		return res
	}

	log := zap.L().With(zap.String("origin", origin))
	retry := resilience.FetchRetry(e.opts.Retries)
	retry.OnRetry = resilience.LogRetry("enrich", origin)

	for i, u := range candidates {
		if i > 0 {
			if err := e.opts.Sleep(ctx, e.delay()); err != nil {
				res.Attempts = append(res.Attempts, Attempt{URL: u, Reason: err.Error()})
				break
			}
		}

		resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.FetchResponse, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
			defer cancel()
			return e.fetcher.Fetch(attemptCtx, u)
		})
		if err != nil || resp == nil {
			reason := "empty response"
			if err != nil {
				reason = err.Error()
			}
			log.Debug("enrich: candidate failed", zap.String("url", u), zap.String("reason", reason))
			res.Attempts = append(res.Attempts, Attempt{URL: u, Reason: reason})
		} else {
			res.Attempts = append(res.Attempts, Attempt{URL: u, OK: true})
			res.Bundle = res.Bundle.Merge(contact.Extract(resp.Body))
		}

		if e.opts.Stop(res.Bundle) {
			res.Stopped = true
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	log.Debug("enrich: done",
		zap.Int("attempts", len(res.Attempts)),
		zap.Int("emails", len(res.Bundle.Emails)),
		zap.Int("phones", len(res.Bundle.Phones)),
		zap.Bool("stopped", res.Stopped),
	)
	return res
}

func (e *Enricher) delay() time.Duration {
	spread := e.opts.MaxDelay - e.opts.MinDelay
	if spread <= 0 {
		return e.opts.MinDelay
	}
	return e.opts.MinDelay + time.Duration(rand.Int64N(int64(spread)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
