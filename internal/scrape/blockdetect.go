package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
	BlockRateLimit  BlockType = "rate_limit"
)

// DetectBlock checks a response for signs of anti-bot protection. header
// may be nil for browser-rendered pages.
func DetectBlock(statusCode int, header http.Header, body []byte) (bool, BlockType) {
	if statusCode == http.StatusTooManyRequests {
		return true, BlockRateLimit
	}
	if (statusCode == http.StatusForbidden || statusCode == http.StatusServiceUnavailable) && header != nil {
		if header.Get("cf-ray") != "" || header.Get("cf-cache-status") != "" || strings.EqualFold(header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}
	return DetectBlockedMarkup(string(body))
}

// DetectBlockedMarkup looks for challenge and captcha markers in page
// markup. Captcha widgets are common on ordinary contact forms, so they only
// count on short pages.
func DetectBlockedMarkup(html string) (bool, BlockType) {
	lower := strings.ToLower(html)

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cf-challenge") {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "captcha-delivery") ||
		strings.Contains(lower, "please verify you are a human") {
		return true, BlockCaptcha
	}

	if len(lower) >= shortPageBytes {
		return false, BlockNone
	}

	if strings.Contains(lower, "recaptcha") || strings.Contains(lower, "hcaptcha") {
		return true, BlockCaptcha
	}
	if strings.Contains(lower, "<noscript") && strings.Contains(lower, "enable javascript") {
		return true, BlockJSShell
	}
	if strings.Contains(lower, `http-equiv="refresh"`) {
		return true, BlockJSShell
	}

	return false, BlockNone
}

const shortPageBytes = 2000
