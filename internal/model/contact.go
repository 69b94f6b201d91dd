package model

import "github.com/sells-group/bizcrawl/internal/normalize"

// ContactBundle holds the contacts harvested from one or more pages.
// Every list is deduplicated and free of empty entries.
type ContactBundle struct {
	Emails      []string `json:"emails"`
	Phones      []string `json:"phones"`
	SocialLinks []string `json:"social_links"`
}

// NewContactBundle builds a normalized bundle from raw lists.
func NewContactBundle(emails, phones, socialLinks []string) ContactBundle {
	return ContactBundle{
		Emails:      normalize.Strings(emails),
		Phones:      normalize.Strings(phones),
		SocialLinks: normalize.Strings(socialLinks),
	}
}

// Merge returns the set union of b and other, keeping b's entries first.
func (b ContactBundle) Merge(other ContactBundle) ContactBundle {
	return NewContactBundle(
		append(append([]string{}, b.Emails...), other.Emails...),
		append(append([]string{}, b.Phones...), other.Phones...),
		append(append([]string{}, b.SocialLinks...), other.SocialLinks...),
	)
}

// HasEmail reports whether at least one email was found.
func (b ContactBundle) HasEmail() bool { return len(b.Emails) > 0 }

// HasPhone reports whether at least one phone number was found.
func (b ContactBundle) HasPhone() bool { return len(b.Phones) > 0 }

// Empty reports whether the bundle carries no contacts at all.
func (b ContactBundle) Empty() bool {
	return len(b.Emails) == 0 && len(b.Phones) == 0 && len(b.SocialLinks) == 0
}
