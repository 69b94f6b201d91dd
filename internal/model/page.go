package model

// RenderedPage is a browser-rendered page.
type RenderedPage struct {
	URL              string `json:"url"`
	HTML             string `json:"html"`
	Text             string `json:"text"`
	ConsentDismissed bool   `json:"consent_dismissed,omitempty"`
}

// FetchResponse is the result of a plain HTTP fetch.
type FetchResponse struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
	Source     string `json:"source,omitempty"` // name of the scraper that served it
}
