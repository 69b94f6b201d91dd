// Package router turns a rendered search results page into follow-up work:
// one DETAIL item per business link and one SEARCH item for the next page.
package router

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/normalize"
)

// DefaultDetailPrefix is the path prefix of business detail pages.
const DefaultDetailPrefix = "/biz/"

// DefaultNextSelectors locate the pagination control, in priority order.
var DefaultNextSelectors = []string{
	`[rel~="next"][href]`,
	`a[aria-label="Next"]`,
	`a.next-link`,
}

// Router discovers work items on search pages.
type Router struct {
	DetailPrefix  string
	NextSelectors []string
}

// New returns a Router with the default prefix and selectors.
func New() *Router {
	return &Router{DetailPrefix: DefaultDetailPrefix, NextSelectors: DefaultNextSelectors}
}

// Route discovers work items with the default Router.
func Route(p *model.RenderedPage, sourceURL string) []model.WorkItem {
	return New().Route(p, sourceURL)
}

// Route returns the DETAIL items found on p followed by at most one SEARCH
// item for the next page. A page matching no known selector yields an empty
// slice.
func (r *Router) Route(p *model.RenderedPage, sourceURL string) []model.WorkItem {
	items := []model.WorkItem{}
	if p == nil || p.HTML == "" {
		return items
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return items
	}

	pageURL := sourceURL
	if _, ok := normalize.Origin(p.URL); ok {
		pageURL = p.URL
	}
	root, ok := normalize.Origin(pageURL)
	if !ok {
		return items
	}

	for _, link := range r.detailLinks(doc, root) {
		items = append(items, model.WorkItem{URL: link, Label: model.LabelDetail})
	}
	if next, ok := r.nextLink(doc, pageURL); ok {
		items = append(items, model.WorkItem{URL: next, Label: model.LabelSearch})
	}
	return items
}

func (r *Router) detailLinks(doc *goquery.Document, root string) []string {
	prefix := r.DetailPrefix
	if prefix == "" {
		prefix = DefaultDetailPrefix
	}
	rootHost := hostOf(root)

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		abs, ok := normalize.Resolve(root, href)
		if !ok {
			return
		}
		if !strings.HasPrefix(href, prefix) {
			// Absolute links count only when they stay on the directory host.
			u, err := url.Parse(abs)
			if err != nil || !strings.EqualFold(u.Host, rootHost) || !strings.HasPrefix(u.Path, prefix) || !strings.Contains(href, "://") {
				return
			}
		}
		links = append(links, abs)
	})
	return normalize.UniqueBy(links, normalize.URLKey)
}

func (r *Router) nextLink(doc *goquery.Document, pageURL string) (string, bool) {
	selectors := r.NextSelectors
	if len(selectors) == 0 {
		selectors = DefaultNextSelectors
	}
	for _, sel := range selectors {
		href := strings.TrimSpace(doc.Find(sel).First().AttrOr("href", ""))
		if href == "" {
			continue
		}
		if abs, ok := normalize.Resolve(pageURL, href); ok {
			return abs, true
		}
	}
	return "", false
}

func hostOf(origin string) string {
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return u.Host
}
