// Package browser renders pages in a headless browser. Two engines are
// available: chromedp (default) and rod with stealth evasions. A
// fetch-backed renderer serves pages that need no JavaScript.
package browser

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bizcrawl/internal/model"
)

// Engine names accepted by New.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
	EngineHTTP     = "http"
)

// DefaultUserAgent is the desktop Chrome user agent sent by the engines.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// DefaultConsentSelectors match the accept buttons of common cookie banners.
var DefaultConsentSelectors = []string{
	`#onetrust-accept-btn-handler`,
	`button[aria-label="Accept all"]`,
	`button[aria-label="Accept All Cookies"]`,
	`button[aria-label="I agree"]`,
	`button[data-testid="accept-cookies"]`,
	`button#accept-cookies`,
}

// Renderer loads a URL and returns the rendered DOM.
type Renderer interface {
	Render(ctx context.Context, url string, opts RenderOptions) (*model.RenderedPage, error)
}

// Screenshotter captures a diagnostic screenshot of a URL.
type Screenshotter interface {
	Screenshot(ctx context.Context, url string) ([]byte, error)
}

// Engine is a Renderer that owns resources released by Close.
type Engine interface {
	Renderer
	io.Closer
}

// RenderOptions controls a single render.
type RenderOptions struct {
	// ConsentSelectors are clicked (first match only) to dismiss a consent
	// banner. Nil means DefaultConsentSelectors; empty disables dismissal.
	ConsentSelectors []string
	// ConsentWait bounds the pause after a consent click.
	ConsentWait time.Duration
}

func (o RenderOptions) selectors() []string {
	if o.ConsentSelectors == nil {
		return DefaultConsentSelectors
	}
	return o.ConsentSelectors
}

// Options configures an Engine.
type Options struct {
	Engine      string
	Headless    bool
	UserAgent   string
	ExecPath    string
	Timeout     time.Duration
	Concurrency int
	// MaxHTMLBytes truncates oversized documents. Zero means 5MB.
	MaxHTMLBytes int
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = 45 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxHTMLBytes <= 0 {
		o.MaxHTMLBytes = 5 * 1024 * 1024
	}
	return o
}

// New starts the engine named by opts.Engine. The http engine needs a
// fetcher; the browser engines ignore it.
func New(opts Options, fetcher Fetcher) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Engine)) {
	case "", EngineChromedp:
		return NewChromedpRenderer(opts)
	case EngineRod:
		return NewRodRenderer(opts)
	case EngineHTTP:
		if fetcher == nil {
			return nil, eris.New("browser: http engine requires a fetcher")
		}
		return NewFetchRenderer(fetcher), nil
	default:
		return nil, eris.Errorf("browser: unknown engine %q", opts.Engine)
	}
}

// consentFunc returns a JavaScript arrow function that clicks the first
// element matching any selector and reports whether it clicked.
func consentFunc(selectors []string) string {
	list, _ := json.Marshal(selectors)
	return `() => {
  const selectors = ` + string(list) + `;
  for (const sel of selectors) {
    let btn = null;
    try { btn = document.querySelector(sel); } catch (e) { continue; }
    if (btn) {
      btn.click();
      return true;
    }
  }
  return false;
}`
}

const textFunc = `() => document.body ? document.body.innerText : ""`

// invoke turns an arrow function into an expression that calls it.
func invoke(fn string) string {
	return "(" + fn + ")()"
}

func truncate(html string, limit int) string {
	if limit > 0 && len(html) > limit {
		return html[:limit]
	}
	return html
}

// acquire takes a slot from sem or gives up when ctx is done.
func acquire(ctx context.Context, sem chan struct{}) (func(), error) {
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
