package resolve

import (
	"net/url"
	"strings"

	"github.com/sells-group/bizcrawl/internal/normalize"
)

// redirectMarker identifies outbound redirect wrappers.
const redirectMarker = "biz_redir"

// decodeWebsite turns a link href into a website origin. Redirect wrappers
// are unwrapped through their url or u query parameter; other hrefs are
// resolved against base.
func decodeWebsite(href, base string) (string, bool) {
	abs, ok := normalize.Resolve(base, href)
	if !ok {
		return "", false
	}
	u, err := url.Parse(abs)
	if err != nil {
		return "", false
	}
	if strings.Contains(u.Path, redirectMarker) {
		q := u.Query()
		inner := q.Get("url")
		if inner == "" {
			inner = q.Get("u")
		}
		if inner == "" {
			return "", false
		}
		if !strings.Contains(inner, "://") {
			if unescaped, err := url.QueryUnescape(inner); err == nil {
				inner = unescaped
			}
		}
		return normalize.Origin(inner)
	}
	return normalize.Origin(abs)
}
