package model

import "time"

// Failure is a work item that failed terminally during a crawl.
type Failure struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Label      Label     `json:"label"`
	Error      string    `json:"error"`
	ErrorType  string    `json:"error_type"` // "transient" or "permanent"
	Screenshot string    `json:"screenshot,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
