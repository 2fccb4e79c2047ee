// Package extract turns an uploaded file into per-page text.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/docvault/internal/model"
	"github.com/xxxsen/docvault/internal/ocr"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

type Options struct {
	// OCR handles PDF pages without a text layer. Nil disables OCR and
	// such pages are reported as failed.
	OCR         ocr.Engine
	OCRError    error
	PageTimeout time.Duration
}

type Result struct {
	Pages       []model.PageText
	Stats       model.ExtractionStats
	Warnings    []string
	ContentType string
}

// HasText reports whether at least one page carries non blank text.
func (r *Result) HasText() bool {
	for _, p := range r.Pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

type Extractor interface {
	Extract(ctx context.Context, data []byte, opts Options) (*Result, error)
}

var extractors = map[string]Extractor{
	".pdf":      &pdfExtractor{},
	".txt":      &textExtractor{},
	".md":       &markdownExtractor{},
	".markdown": &markdownExtractor{},
}

// ForFilename picks the extractor by file extension.
func ForFilename(name string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if e, ok := extractors[ext]; ok {
		return e, nil
	}
	return nil, appErr.Invalidf("unsupported file type %q", ext)
}

func Supported(name string) bool {
	_, err := ForFilename(name)
	return err == nil
}

func finishStats(res *Result) {
	res.Stats.TotalPages = len(res.Pages)
	if res.Stats.FailedPages == nil {
		res.Stats.FailedPages = []int{}
	}
	res.Stats.PagesFailed = len(res.Stats.FailedPages)
	if n := res.Stats.PagesFailed; n > 0 {
		pages := make([]string, 0, n)
		for _, p := range res.Stats.FailedPages {
			pages = append(pages, fmt.Sprint(p))
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("failed to extract text from %d page(s): %s", n, strings.Join(pages, ", ")))
	}
	if n := res.Stats.PagesOCRUsed; n > 0 && res.Stats.TotalPages > 0 {
		pct := float64(n) * 100 / float64(res.Stats.TotalPages)
		res.Warnings = append(res.Warnings, fmt.Sprintf("OCR was used for %d of %d pages (%.0f%%)", n, res.Stats.TotalPages, pct))
	}
}
