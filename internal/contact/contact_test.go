package contact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract_FiltersPlaceholderEmails(t *testing.T) {
	t.Parallel()

	got := Extract("Reach us at info@example.com or sales@acme.com")
	assert.Equal(t, []string{"sales@acme.com"}, got.Emails)
}

func TestExtract_Emails(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"mixed case dedup", "Mail Info@Acme.com, info@acme.com.", []string{"info@acme.com"}},
		{"test domain", "qa@testing.io and ops@acme.org", []string{"ops@acme.org"}},
		{"uppercase placeholder", "demo@EXAMPLE.ORG", nil},
		{"inside markup", `<a href="mailto:hello@joes-pizza.nyc">Email</a>`, []string{"hello@joes-pizza.nyc"}},
		{"none", "no contact here", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Extract(tt.text)
			if tt.want == nil {
				assert.Empty(t, got.Emails)
				return
			}
			assert.Equal(t, tt.want, got.Emails)
		})
	}
}

func TestExtract_Phones(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"mixed formats", "Call (555) 010-0199 or +1-555-0100 today. Suite 12, floor 3.", []string{"(555) 010-0199", "+1-555-0100"}},
		{"two numbers one space apart", "Call 555-010-0100 555-010-0199", []string{"555-010-0100", "555-010-0199"}},
		{"short numbers one space apart", "Front desk 555-0100 555-0199.", []string{"555-0100", "555-0199"}},
		{"parenthesized second number", "+1 (555) 010-0199 (555) 010-0100", []string{"+1 (555) 010-0199", "(555) 010-0100"}},
		{"sentence stop before a digit", "Call 555-0100. 2 locations nearby", []string{"555-0100"}},
		{"space grouped international", "London office +44 20 7946 0958", []string{"+44 20 7946 0958"}},
		{"too many digits", "Order 1234567890123456789 shipped", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Extract(tt.text)
			if tt.want == nil {
				assert.Empty(t, got.Phones)
				return
			}
			assert.Equal(t, tt.want, got.Phones)
		})
	}
}

func TestExtract_PhonesNeedSevenDigits(t *testing.T) {
	t.Parallel()

	got := Extract("Open 9-5, 555-010 ext, 12.34.56")
	for _, p := range got.Phones {
		assert.GreaterOrEqual(t, DigitCount(p), 7, p)
	}
	assert.Empty(t, got.Phones)
}

func TestExtract_SocialLinks(t *testing.T) {
	t.Parallel()

	text := `Follow https://www.facebook.com/acme, https://instagram.com/acme_co
	and https://x.com/acme. Also https://www.linkedin.com/company/acme/ and
	"https://www.youtube.com/@acme" plus https://tiktok.com/@acme and
	https://www.twitter.com/acme and https://facebook.com/acme, https://myspace.com/acme`

	got := Extract(text)
	assert.Equal(t, []string{
		"https://www.facebook.com/acme",
		"https://instagram.com/acme_co",
		"https://x.com/acme",
		"https://www.linkedin.com/company/acme/",
		"https://www.youtube.com/@acme",
		"https://tiktok.com/@acme",
		"https://www.twitter.com/acme",
		"https://facebook.com/acme",
	}, got.SocialLinks)
}

func TestExtract_Empty(t *testing.T) {
	t.Parallel()

	got := Extract("")
	assert.True(t, got.Empty())
	assert.NotNil(t, got.Emails)
}

func TestExtract_Properties(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"<html><body></body></html>",
		"a@b.co a@b.co A@B.CO test@acme.com",
		"<p>Tel: 555 0100 123</p><p>Tel: 555 0100 123</p>",
		"https://facebook.com/x https://facebook.com/x <<<>>> @@@ ...",
		strings.Repeat("info@acme.com 212-555-0100 https://instagram.com/acme ", 20),
		"\x00\xff malformed <div <a href=",
	}

	for _, in := range inputs {
		got := Extract(in)
		for _, list := range [][]string{got.Emails, got.Phones, got.SocialLinks} {
			seen := map[string]bool{}
			for _, v := range list {
				assert.NotEmpty(t, v)
				assert.False(t, seen[v], "duplicate %q", v)
				seen[v] = true
			}
		}
		for _, e := range got.Emails {
			lower := strings.ToLower(e)
			assert.NotContains(t, lower, "example")
			assert.NotContains(t, lower, "test")
		}
		for _, p := range got.Phones {
			assert.GreaterOrEqual(t, DigitCount(p), 7)
		}
	}
}
