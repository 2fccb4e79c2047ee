package docx

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xxxsen/docvault/internal/model"
)

const contextRunes = 40

var markerPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// fieldCollector keeps the first occurrence of every placeholder name.
type fieldCollector struct {
	seen   map[string]struct{}
	fields []model.TemplateField
}

func newFieldCollector() *fieldCollector {
	return &fieldCollector{seen: make(map[string]struct{})}
}

func (c *fieldCollector) scan(text string) {
	for _, m := range markerPattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		if _, ok := c.seen[name]; ok {
			continue
		}
		c.seen[name] = struct{}{}
		c.fields = append(c.fields, model.TemplateField{
			Name:    name,
			Label:   humanize(name),
			Context: surrounding(text, m[0], m[1]),
		})
	}
}

func (c *fieldCollector) result() []model.TemplateField {
	if c.fields == nil {
		return []model.TemplateField{}
	}
	return c.fields
}

// humanize turns "tenant_full-name" or "tenantName" into "Tenant Full Name".
func humanize(name string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	prev := rune(0)
	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == '.':
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

func surrounding(text string, start, end int) string {
	before := []rune(text[:start])
	after := []rune(text[end:])
	if len(before) > contextRunes {
		before = before[len(before)-contextRunes:]
	}
	if len(after) > contextRunes {
		after = after[:contextRunes]
	}
	out := string(before) + text[start:end] + string(after)
	return strings.Join(strings.Fields(out), " ")
}

// neutralize keeps supplied values from introducing new markers.
func neutralize(v string) string {
	for strings.Contains(v, "{{") {
		v = strings.ReplaceAll(v, "{{", "{ {")
	}
	return v
}

// breakMarkers splits any marker formed where a value meets the text around
// it. Each pass removes one "{{" pair and creates none.
func breakMarkers(text string) string {
	for {
		loc := markerPattern.FindStringIndex(text)
		if loc == nil {
			return text
		}
		text = text[:loc[0]+1] + " " + text[loc[0]+1:]
	}
}

func substituteText(text string, values map[string]string) string {
	out := markerPattern.ReplaceAllStringFunc(text, func(marker string) string {
		name := markerPattern.FindStringSubmatch(marker)[1]
		return neutralize(values[name])
	})
	return breakMarkers(out)
}
