package extract

import (
	"strings"
	"unicode"

	"github.com/xxxsen/docvault/internal/model"
)

const (
	LanguageThai    = "thai"
	LanguageEnglish = "english"
	LanguageMixed   = "mixed"
	LanguageUnknown = "unknown"

	DocTypeContract = "contract"
	DocTypeDocument = "document"
)

const (
	profilePages      = 5
	abstractPages     = 20
	maxAbstractRunes  = 1000
	dominantScript    = 0.6
	contractThreshold = 2
)

var (
	contractIndicators = []string{
		"สัญญา", "contract", "agreement", "คู่สัญญา", "parties",
		"ข้อตกลง", "terms", "ผู้ว่าจ้าง", "ผู้รับจ้าง", "employer",
		"contractor", "ข้อกำหนด", "conditions", "ลงนาม", "signature",
	}
	abstractMarkers = []string{"abstract", "summary", "บทคัดย่อ", "สรุป"}
	abstractStops   = []string{"keywords", "chapter", "clause", "คำสำคัญ", "บทที่", "ข้อ"}
)

// Profile is what can be told about a document from its text alone.
type Profile struct {
	Abstract string
	Language string
	DocType  string
}

// Describe profiles a document. Language and type look at the leading
// pages only.
func Describe(pages []model.PageText) Profile {
	var head strings.Builder
	for i, p := range pages {
		if i >= profilePages {
			break
		}
		head.WriteString(p.Text)
		head.WriteString("\n")
	}
	return Profile{
		Abstract: FindAbstract(pages),
		Language: DetectLanguage(head.String()),
		DocType:  ClassifyDocType(head.String()),
	}
}

// DetectLanguage compares Thai letters with Latin letters.
func DetectLanguage(text string) string {
	var thai, latin int
	for _, r := range text {
		switch {
		case r >= 'ก' && r <= '๙':
			thai++
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			latin++
		}
	}
	total := thai + latin
	if total == 0 {
		return LanguageUnknown
	}
	switch {
	case float64(thai)/float64(total) > dominantScript:
		return LanguageThai
	case float64(latin)/float64(total) > dominantScript:
		return LanguageEnglish
	default:
		return LanguageMixed
	}
}

func ClassifyDocType(text string) string {
	lower := strings.ToLower(text)
	hits := 0
	for _, ind := range contractIndicators {
		if strings.Contains(lower, ind) {
			hits++
		}
	}
	if hits >= contractThreshold {
		return DocTypeContract
	}
	return DocTypeDocument
}

// FindAbstract returns the lines following an abstract or summary heading
// on the first page that has one, up to the next section heading.
func FindAbstract(pages []model.PageText) string {
	for i, p := range pages {
		if i >= abstractPages {
			break
		}
		lines := strings.Split(p.Text, "\n")
		start := -1
		for j, line := range lines {
			if containsAny(strings.ToLower(line), abstractMarkers) {
				start = j
				break
			}
		}
		if start < 0 {
			continue
		}
		var parts []string
		for _, line := range lines[start+1:] {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if containsAny(strings.ToLower(line), abstractStops) {
				break
			}
			parts = append(parts, line)
		}
		return truncate(strings.Join(parts, " "), maxAbstractRunes)
	}
	return ""
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
