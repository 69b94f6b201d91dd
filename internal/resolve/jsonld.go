package resolve

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// DefaultBusinessTypes are the schema.org types accepted as the page's
// primary metadata source.
var DefaultBusinessTypes = []string{
	"LocalBusiness",
	"Organization",
	"ProfessionalService",
	"MedicalBusiness",
}

// findEntity returns the first JSON-LD entity on the page whose @type is in
// types. Blocks that are not valid JSON are skipped.
func findEntity(doc *goquery.Document, types []string) (gjson.Result, string, bool) {
	var (
		found    gjson.Result
		foundTyp string
		ok       bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" || !gjson.Valid(raw) {
			return true
		}
		for _, ent := range entities(gjson.Parse(raw)) {
			if typ, match := matchType(ent, types); match {
				found, foundTyp, ok = ent, typ, true
				return false
			}
		}
		return true
	})
	return found, foundTyp, ok
}

// entities flattens top-level arrays and @graph members into a list of
// candidate objects.
func entities(v gjson.Result) []gjson.Result {
	var out []gjson.Result
	switch {
	case v.IsArray():
		for _, el := range v.Array() {
			out = append(out, entities(el)...)
		}
	case v.IsObject():
		out = append(out, v)
		if graph := key(v, "@graph"); graph.IsArray() {
			out = append(out, entities(graph)...)
		}
	}
	return out
}

func matchType(ent gjson.Result, types []string) (string, bool) {
	var declared []string
	t := key(ent, "@type")
	if t.IsArray() {
		for _, el := range t.Array() {
			declared = append(declared, el.String())
		}
	} else if t.Exists() {
		declared = append(declared, t.String())
	}
	for _, d := range declared {
		short := d[strings.LastIndex(d, "/")+1:]
		for _, want := range types {
			if strings.EqualFold(short, want) {
				return want, true
			}
		}
	}
	return "", false
}

// key looks up a literal top-level key. Keys such as "@type" collide with
// gjson's modifier syntax, so they are matched by iteration.
func key(obj gjson.Result, name string) gjson.Result {
	var out gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == name {
			out = v
			return false
		}
		return true
	})
	return out
}

// str returns the trimmed string at path, or false when absent or empty.
func str(obj gjson.Result, path string) (string, bool) {
	v := obj.Get(path)
	if !v.Exists() {
		return "", false
	}
	if v.IsArray() {
		arr := v.Array()
		if len(arr) == 0 {
			return "", false
		}
		v = arr[0]
	}
	s := collapse(v.String())
	return s, s != ""
}

// strs returns the string values at path whether singular or a list.
func strs(obj gjson.Result, path string) []string {
	v := obj.Get(path)
	if !v.Exists() {
		return nil
	}
	if !v.IsArray() {
		return []string{collapse(v.String())}
	}
	var out []string
	for _, el := range v.Array() {
		out = append(out, collapse(el.String()))
	}
	return out
}

// joinAddress renders a schema.org address as a single line.
func joinAddress(addr gjson.Result) (string, bool) {
	if addr.IsArray() {
		arr := addr.Array()
		if len(arr) == 0 {
			return "", false
		}
		addr = arr[0]
	}
	if !addr.IsObject() {
		s := collapse(addr.String())
		return s, s != ""
	}
	var parts []string
	for _, field := range []string{"streetAddress", "addressLocality", "addressRegion", "postalCode"} {
		if s, ok := str(addr, field); ok {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, ", "), true
}
