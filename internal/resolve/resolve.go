// Package resolve extracts a BusinessRecord from a rendered detail page.
// Every field is resolved on its own through a priority-ordered strategy
// chain: embedded JSON-LD first, visible markup second. A field whose chain
// is exhausted is left nil (or empty) and never affects the other fields.
package resolve

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/normalize"
	"github.com/sells-group/bizcrawl/internal/strategy"
)

// Field names used as Report keys.
const (
	FieldName        = "name"
	FieldPhone       = "phone"
	FieldAddress     = "address"
	FieldCategories  = "categories"
	FieldRating      = "rating"
	FieldReviewCount = "review_count"
	FieldWebsite     = "website"
	FieldPriceLevel  = "price_level"
)

// page is the input shared by every strategy.
type page struct {
	doc  *goquery.Document
	ld   gjson.Result
	base string
}

// Report describes how each field of a record was resolved.
type Report struct {
	JSONLDType string                      `json:"jsonld_type,omitempty"`
	Fields     map[string]strategy.Outcome `json:"fields"`
}

// Resolver extracts business records from detail pages.
type Resolver struct {
	// BusinessTypes lists the accepted JSON-LD @type values.
	BusinessTypes []string
	Now           func() time.Time
}

// New returns a Resolver with the default business types.
func New() *Resolver {
	return &Resolver{BusinessTypes: DefaultBusinessTypes, Now: time.Now}
}

// Resolve extracts a record with the default Resolver.
func Resolve(p *model.RenderedPage, sourceURL string) model.BusinessRecord {
	return New().Resolve(p, sourceURL)
}

// Resolve extracts a record from p. It always returns a record.
func (r *Resolver) Resolve(p *model.RenderedPage, sourceURL string) model.BusinessRecord {
	rec, _ := r.ResolveWithReport(p, sourceURL)
	return rec
}

// ResolveWithReport extracts a record from p and reports the strategy that
// produced each field, or why none did.
func (r *Resolver) ResolveWithReport(p *model.RenderedPage, sourceURL string) (model.BusinessRecord, Report) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	rec := model.NewBusinessRecord(sourceURL, now().UTC())
	rep := Report{Fields: make(map[string]strategy.Outcome, 8)}

	in := r.load(p, sourceURL)
	types := r.BusinessTypes
	if len(types) == 0 {
		types = DefaultBusinessTypes
	}
	if ld, typ, ok := findEntity(in.doc, types); ok {
		in.ld = ld
		rep.JSONLDType = typ
	}

	name := nameChain.Resolve(in)
	rep.Fields[FieldName] = name.Outcome
	if name.OK {
		rec.Name = model.Ptr(name.Value)
	}

	phone := phoneChain.Resolve(in)
	rep.Fields[FieldPhone] = phone.Outcome
	if phone.OK {
		rec.Phone = model.Ptr(phone.Value)
	}

	addr := addressChain.Resolve(in)
	rep.Fields[FieldAddress] = addr.Outcome
	if addr.OK {
		rec.Address = model.Ptr(addr.Value)
	}

	cats := categoriesChain.Resolve(in)
	rep.Fields[FieldCategories] = cats.Outcome
	if cats.OK {
		rec.Categories = cats.Value
	}

	rating := ratingChain.Resolve(in)
	rep.Fields[FieldRating] = rating.Outcome
	if rating.OK {
		rec.Rating = model.Ptr(rating.Value)
	}

	reviews := reviewCountChain.Resolve(in)
	rep.Fields[FieldReviewCount] = reviews.Outcome
	if reviews.OK {
		rec.ReviewCount = model.Ptr(reviews.Value)
	}

	site := websiteChain.Resolve(in)
	rep.Fields[FieldWebsite] = site.Outcome
	if site.OK {
		rec.Website = model.Ptr(site.Value)
	}

	price := priceChain.Resolve(in)
	rep.Fields[FieldPriceLevel] = price.Outcome
	if price.OK {
		rec.PriceLevel = model.Ptr(price.Value)
	}

	return rec, rep
}

func (r *Resolver) load(p *model.RenderedPage, sourceURL string) page {
	html := ""
	base := sourceURL
	if p != nil {
		html = p.HTML
		if _, ok := normalize.Origin(p.URL); ok {
			base = p.URL
		}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	return page{doc: doc, base: base}
}

var nameChain = strategy.Chain[page, string]{
	strategy.New("jsonld.name", func(p page) (string, bool) {
		return str(p.ld, "name")
	}),
	strategy.New("heading", func(p page) (string, bool) {
		return firstText(p.doc, "h1")
	}),
}

var phoneChain = strategy.Chain[page, string]{
	strategy.New("jsonld.telephone", func(p page) (string, bool) {
		return str(p.ld, "telephone")
	}),
	strategy.New("tel-link", func(p page) (string, bool) {
		var phone string
		p.doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			href = strings.TrimSpace(href)
			if len(href) < len("tel:") || !strings.EqualFold(href[:len("tel:")], "tel:") {
				return true
			}
			phone = href[len("tel:"):]
			if unescaped, err := url.PathUnescape(phone); err == nil {
				phone = unescaped
			}
			phone = strings.TrimSpace(phone)
			return phone == ""
		})
		return phone, phone != ""
	}),
}

var addressChain = strategy.Chain[page, string]{
	strategy.New("jsonld.address", func(p page) (string, bool) {
		return joinAddress(p.ld.Get("address"))
	}),
	strategy.New("address-element", func(p page) (string, bool) {
		el := p.doc.Find("address").First()
		if el.Length() == 0 {
			return "", false
		}
		var lines []string
		el.Find("p, span").Each(func(_ int, s *goquery.Selection) {
			if s.Children().Length() == 0 {
				lines = append(lines, collapse(s.Text()))
			}
		})
		lines = normalize.Strings(lines)
		if len(lines) > 0 {
			return strings.Join(lines, ", "), true
		}
		text := collapse(el.Text())
		return text, text != ""
	}),
}

var categorySelectors = []string{
	`[data-testid="category"] a`,
	`span.category-str-list a`,
	`a[href*="cflt="]`,
}

var categoriesChain = strategy.Chain[page, []string]{
	strategy.New("jsonld.category", func(p page) ([]string, bool) {
		for _, path := range []string{"category", "categories", "servesCuisine"} {
			if cats := normalize.Strings(strs(p.ld, path)); len(cats) > 0 {
				return cats, true
			}
		}
		return nil, false
	}),
	strategy.New("category-links", func(p page) ([]string, bool) {
		var cats []string
		for _, sel := range categorySelectors {
			p.doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
				cats = append(cats, collapse(s.Text()))
			})
		}
		cats = normalize.Strings(cats)
		return cats, len(cats) > 0
	}),
}

var numberPrefixRe = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)`)

var ratingChain = strategy.Chain[page, float64]{
	strategy.New("jsonld.aggregateRating", func(p page) (float64, bool) {
		v := p.ld.Get("aggregateRating.ratingValue")
		if !v.Exists() {
			return 0, false
		}
		return parseNumberPrefix(v.String())
	}),
	strategy.New("star-label", func(p page) (float64, bool) {
		var (
			rating float64
			ok     bool
		)
		p.doc.Find(`[aria-label*="star rating"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			label, _ := s.Attr("aria-label")
			rating, ok = parseNumberPrefix(label)
			return !ok
		})
		return rating, ok
	}),
}

var reviewsRe = regexp.MustCompile(`(?i)(\d[\d,]*)\s+reviews?\b`)

var reviewCountChain = strategy.Chain[page, int]{
	strategy.New("reviews-label", func(p page) (int, bool) {
		var (
			count int
			ok    bool
		)
		p.doc.Find("a, span, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			m := reviewsRe.FindStringSubmatch(collapse(s.Text()))
			if m == nil {
				return true
			}
			n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
			if err != nil {
				return true
			}
			count, ok = n, true
			return false
		})
		return count, ok
	}),
}

var websiteChain = strategy.Chain[page, string]{
	strategy.New("website-text", websiteByText(func(text string) bool {
		return text == "website" || text == "business website"
	})),
	strategy.New("visit-website-text", websiteByText(func(text string) bool {
		return strings.Contains(text, "visit website")
	})),
	strategy.New("redirect-link", func(p page) (string, bool) {
		return firstWebsite(p, p.doc.Find(`a[href*="`+redirectMarker+`"]`))
	}),
}

func websiteByText(match func(lowerText string) bool) func(page) (string, bool) {
	return func(p page) (string, bool) {
		anchors := p.doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return match(strings.ToLower(collapse(s.Text())))
		})
		return firstWebsite(p, anchors)
	}
}

func firstWebsite(p page, anchors *goquery.Selection) (string, bool) {
	var (
		site string
		ok   bool
	)
	anchors.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		site, ok = decodeWebsite(href, p.base)
		return !ok
	})
	return site, ok
}

var priceSelectors = []string{
	`span.price-range`,
	`[data-testid="price-range"]`,
	`span.priceRange`,
}

var priceChain = strategy.Chain[page, string]{
	strategy.New("price-indicator", func(p page) (string, bool) {
		for _, sel := range priceSelectors {
			if text, ok := firstText(p.doc, sel); ok {
				return text, true
			}
		}
		return "", false
	}),
}

func firstText(doc *goquery.Document, selector string) (string, bool) {
	text := collapse(doc.Find(selector).First().Text())
	return text, text != ""
}

func parseNumberPrefix(s string) (float64, bool) {
	m := numberPrefixRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
