// Package contact extracts emails, phone numbers and social profile links
// from raw page text or markup. Extraction is regex based and accepts false
// positives (dates or markup runs of seven or more digits read as phones).
package contact

import (
	"regexp"
	"strings"

	"github.com/sells-group/bizcrawl/internal/model"
)

var (
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe  = regexp.MustCompile(`\+?\(?\d[\d ().\-]*\d`)
	socialRe = regexp.MustCompile(`(?i)https?://(?:www\.)?(?:facebook|instagram|twitter|x|linkedin|youtube|tiktok)\.com/[^\s"'<>()\\]+`)
)

// placeholderMarkers reject demo addresses such as info@example.com.
var placeholderMarkers = []string{"example", "test"}

// A phone candidate carries between minPhoneDigits and maxPhoneDigits
// digits; fifteen is the longest international number.
const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// Extract scans text for contacts. It never fails: input without matches
// yields an empty bundle.
func Extract(text string) model.ContactBundle {
	if text == "" {
		return model.NewContactBundle(nil, nil, nil)
	}
	return model.NewContactBundle(Emails(text), Phones(text), SocialLinks(text))
}

// Emails returns the lower-cased, non-placeholder addresses in text.
func Emails(text string) []string {
	var out []string
	for _, m := range emailRe.FindAllString(text, -1) {
		email := strings.ToLower(strings.Trim(m, "."))
		if isPlaceholder(email) {
			continue
		}
		out = append(out, email)
	}
	return out
}

// Phones returns candidates with seven to fifteen digits.
func Phones(text string) []string {
	var out []string
	for _, run := range phoneRe.FindAllString(text, -1) {
		for _, phone := range splitPhoneRun(run) {
			phone = strings.TrimSpace(phone)
			if strings.HasPrefix(phone, "(") && !strings.Contains(phone, ")") {
				phone = strings.TrimPrefix(phone, "(")
			}
			if n := DigitCount(phone); n < minPhoneDigits || n > maxPhoneDigits {
				continue
			}
			out = append(out, phone)
		}
	}
	return out
}

// splitPhoneRun cuts a run of digits and separators where one number ends
// and the next begins: at a space that follows a group of four or more
// digits, when the number so far was written with dashes, dots or
// parentheses. Numbers grouped by spaces alone ("+44 20 7946 0958") stay
// whole.
func splitPhoneRun(run string) []string {
	var out []string
	start := 0
	for i := 0; i < len(run); i++ {
		if run[i] != ' ' || i+1 >= len(run) {
			continue
		}
		left := strings.TrimRight(run[start:i], ".")
		if trailingDigits(left) >= 4 && strings.ContainsAny(left, "-.()") && startsGroup(run[i+1]) {
			out = append(out, left)
			start = i + 1
		}
	}
	return append(out, run[start:])
}

func trailingDigits(s string) int {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] >= '0' && s[i] <= '9'; i-- {
		n++
	}
	return n
}

func startsGroup(c byte) bool {
	return c == '(' || (c >= '0' && c <= '9')
}

// SocialLinks returns profile links on the allow-listed platforms.
func SocialLinks(text string) []string {
	var out []string
	for _, m := range socialRe.FindAllString(text, -1) {
		link := strings.TrimRight(m, ".,;:!?")
		out = append(out, link)
	}
	return out
}

// DigitCount returns the number of ASCII digits in s.
func DigitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func isPlaceholder(email string) bool {
	for _, marker := range placeholderMarkers {
		if strings.Contains(email, marker) {
			return true
		}
	}
	return false
}
