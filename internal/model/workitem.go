package model

import "github.com/sells-group/bizcrawl/internal/normalize"

// Label classifies a work item by the kind of page it points at.
type Label string

const (
	LabelSearch Label = "SEARCH"
	LabelDetail Label = "DETAIL"
)

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	return l == LabelSearch || l == LabelDetail
}

// WorkItem is a unit of crawl work: a URL plus a page-type label.
type WorkItem struct {
	URL   string `json:"url"`
	Label Label  `json:"label"`
}

// Key returns the identity of the item used for queue dedup.
func (w WorkItem) Key() string {
	return normalize.URLKey(w.URL)
}
