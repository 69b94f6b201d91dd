package crawler

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/normalize"
	"github.com/sells-group/bizcrawl/internal/router"
)

// SeedURL returns the search URL a crawl starts from. A direct URL wins;
// otherwise term and location are encoded into baseURL's /search page.
func SeedURL(baseURL, term, location, direct string) (string, error) {
	if direct = strings.TrimSpace(direct); direct != "" {
		if _, ok := normalize.Origin(direct); !ok {
			return "", eris.Errorf("crawler: invalid search url %q", direct)
		}
		return direct, nil
	}

	origin, ok := normalize.Origin(baseURL)
	if !ok {
		return "", eris.Errorf("crawler: invalid base url %q", baseURL)
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return "", eris.New("crawler: search term or search url required")
	}

	q := url.Values{}
	q.Set("find_desc", term)
	if location = strings.TrimSpace(location); location != "" {
		q.Set("find_loc", location)
	}
	return origin + "/search?" + q.Encode(), nil
}

// SeedItem labels a seed URL: DETAIL when its path starts with
// detailPrefix, SEARCH otherwise.
func SeedItem(rawURL, detailPrefix string) model.WorkItem {
	if detailPrefix == "" {
		detailPrefix = router.DefaultDetailPrefix
	}
	label := model.LabelSearch
	if u, err := url.Parse(rawURL); err == nil && strings.HasPrefix(u.Path, detailPrefix) {
		label = model.LabelDetail
	}
	return model.WorkItem{URL: rawURL, Label: label}
}
