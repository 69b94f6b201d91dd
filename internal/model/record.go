package model

import (
	"time"

	"github.com/sells-group/bizcrawl/internal/normalize"
)

// BusinessRecord is the structured result of one detail page. Nil pointer
// fields are values that could not be resolved.
type BusinessRecord struct {
	ID                string    `json:"id,omitempty"`
	ScrapedAt         time.Time `json:"scraped_at"`
	Name              *string   `json:"name"`
	Categories        []string  `json:"categories"`
	Rating            *float64  `json:"rating"`
	ReviewCount       *int      `json:"review_count"`
	PriceLevel        *string   `json:"price_level"`
	Phone             *string   `json:"phone"`
	Address           *string   `json:"address"`
	SourceURL         string    `json:"source_url"`
	Website           *string   `json:"website"`
	Emails            []string  `json:"emails"`
	PhonesFromWebsite []string  `json:"phones_from_website"`
	SocialLinks       []string  `json:"social_links"`
}

// NewBusinessRecord returns an empty record for sourceURL with non-nil lists.
func NewBusinessRecord(sourceURL string, scrapedAt time.Time) BusinessRecord {
	return BusinessRecord{
		ScrapedAt:         scrapedAt,
		SourceURL:         sourceURL,
		Categories:        []string{},
		Emails:            []string{},
		PhonesFromWebsite: []string{},
		SocialLinks:       []string{},
	}
}

// Contacts returns the website-harvested contacts as a bundle.
func (r *BusinessRecord) Contacts() ContactBundle {
	return NewContactBundle(r.Emails, r.PhonesFromWebsite, r.SocialLinks)
}

// ApplyContacts merges b into the record's contact fields.
func (r *BusinessRecord) ApplyContacts(b ContactBundle) {
	merged := r.Contacts().Merge(b)
	r.Emails = merged.Emails
	r.PhonesFromWebsite = merged.Phones
	r.SocialLinks = merged.SocialLinks
	r.Categories = normalize.Strings(r.Categories)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *p, or the zero value when p is nil.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
