package browser

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bizcrawl/internal/model"
)

// Fetcher fetches a page without running scripts.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*model.FetchResponse, error)
}

// FetchRenderer renders a page by fetching its HTML. It runs no scripts and
// cannot dismiss consent banners.
type FetchRenderer struct {
	fetcher Fetcher
}

// NewFetchRenderer wraps fetcher as a Renderer.
func NewFetchRenderer(fetcher Fetcher) *FetchRenderer {
	return &FetchRenderer{fetcher: fetcher}
}

// Render fetches url and derives the visible text from the markup.
func (r *FetchRenderer) Render(ctx context.Context, url string, _ RenderOptions) (*model.RenderedPage, error) {
	resp, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "browser: fetch %s", url)
	}
	page := &model.RenderedPage{URL: resp.URL, HTML: resp.Body}
	if page.URL == "" {
		page.URL = url
	}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Body)); err == nil {
		doc.Find("script, style, noscript").Remove()
		page.Text = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	}
	return page, nil
}

// Close is a no-op.
func (r *FetchRenderer) Close() error { return nil }
