package scrape

import (
	"net/url"
	"path"
	"strings"
)

// DefaultExcludePatterns skip documents that never carry contact markup.
var DefaultExcludePatterns = []string{"/*.pdf", "/*.jpg", "/*.png", "/*.zip", "/wp-admin/*"}

// Excluder rejects URLs whose path matches a glob pattern. A pattern ending
// in "/*" also matches every deeper path below it.
type Excluder struct {
	patterns []string
}

// NewExcluder returns an Excluder for patterns, lower-cased.
func NewExcluder(patterns []string) *Excluder {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &Excluder{patterns: lowered}
}

// Excluded reports whether rawURL is rejected. Unparseable URLs are.
func (e *Excluder) Excluded(rawURL string) bool {
	if e == nil || len(e.patterns) == 0 {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range e.patterns {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
		if dir, found := strings.CutSuffix(pattern, "/*"); found && strings.HasPrefix(p, dir+"/") {
			return true
		}
	}
	return false
}
