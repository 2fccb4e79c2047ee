package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

// textExtractor treats form feeds as page breaks.
type textExtractor struct{}

func (e *textExtractor) Extract(ctx context.Context, data []byte, opts Options) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, appErr.Extraction("text file is not valid UTF-8", nil)
	}
	res := &Result{ContentType: "text/plain; charset=utf-8"}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	for i, raw := range strings.Split(content, "\f") {
		page := model.PageText{Page: i + 1, Text: raw, Source: model.PageSourceText}
		if strings.TrimSpace(raw) != "" {
			res.Stats.PagesWithText++
		}
		res.Pages = append(res.Pages, page)
	}
	finishStats(res)
	return res, nil
}
