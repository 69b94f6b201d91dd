package scrape

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/resilience"
)

// LocalScraper fetches pages with net/http, detects blocks and decodes the
// body to UTF-8.
type LocalScraper struct {
	client    *http.Client
	userAgent string
}

// NewLocalScraper creates a LocalScraper. A zero timeout means 15s and an
// empty userAgent means DefaultUserAgent.
func NewLocalScraper(userAgent string, timeout time.Duration) *LocalScraper {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &LocalScraper{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: userAgent,
	}
}

func (l *LocalScraper) Name() string             { return "local_http" }
func (l *LocalScraper) Supports(url string) bool { return isHTTP(url) }

// Fetch downloads targetURL. Non-2xx statuses and anti-bot pages are
// errors; rate limits and 5xx come back transient.
func (l *LocalScraper) Fetch(ctx context.Context, targetURL string) (*model.FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, blockType := DetectBlock(resp.StatusCode, resp.Header, body); blocked {
		return nil, blockError("local_http", blockType, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return nil, resilience.StatusError("local_http", resp.StatusCode)
	}

	return &model.FetchResponse{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       decodeBody(resp.Header.Get("Content-Type"), body),
		Source:     l.Name(),
	}, nil
}

func blockError(component string, blockType BlockType, statusCode int) error {
	err := eris.Errorf("%s: blocked (%s)", component, blockType)
	if blockType == BlockRateLimit {
		return resilience.NewTransientError(err, statusCode)
	}
	return err
}

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?([a-z0-9_\-:.]+)`)

// decodeBody converts body to UTF-8 using the Content-Type charset, falling
// back to a <meta charset> declaration in the first 1KB. Unknown labels
// leave the body untouched.
func decodeBody(contentType string, body []byte) string {
	label := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		label = params["charset"]
	}
	if label == "" {
		head := body[:min(len(body), 1024)]
		if m := metaCharsetRe.FindSubmatch(head); m != nil {
			label = string(m[1])
		}
	}
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || label == "utf-8" || label == "utf8" {
		return string(body)
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return string(body)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
