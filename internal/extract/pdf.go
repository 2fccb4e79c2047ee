package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ledongthuc/pdf"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

type pdfExtractor struct{}

func (e *pdfExtractor) Extract(ctx context.Context, data []byte, opts Options) (*Result, error) {
	native, err := readPDFPages(data)
	if err != nil {
		return nil, err
	}
	return e.fromPages(ctx, data, native, opts)
}

// fromPages keeps native page text and sends blank pages to OCR.
func (e *pdfExtractor) fromPages(ctx context.Context, data []byte, native []string, opts Options) (*Result, error) {
	logger := logutil.GetLogger(ctx)
	res := &Result{ContentType: "application/pdf"}
	for i, text := range native {
		pageNo := i + 1
		if strings.TrimSpace(text) != "" {
			res.Stats.PagesWithText++
			res.Pages = append(res.Pages, model.PageText{Page: pageNo, Text: text, Source: model.PageSourceText})
			continue
		}
		if opts.OCR == nil {
			logger.Warn("pdf page has no text layer and ocr is unavailable", zap.Int("page", pageNo), zap.NamedError("ocr_error", opts.OCRError))
			res.Stats.FailedPages = append(res.Stats.FailedPages, pageNo)
			res.Pages = append(res.Pages, model.PageText{Page: pageNo, Source: model.PageSourceFailed})
			continue
		}
		ocrText, err := recognizeWithRetry(ctx, opts, data, pageNo)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("ocr page failed", zap.Int("page", pageNo), zap.String("engine", opts.OCR.Name()), zap.Error(err))
			res.Stats.FailedPages = append(res.Stats.FailedPages, pageNo)
			res.Pages = append(res.Pages, model.PageText{Page: pageNo, Source: model.PageSourceFailed})
			continue
		}
		res.Stats.PagesOCRUsed++
		res.Pages = append(res.Pages, model.PageText{Page: pageNo, Text: ocrText, Source: model.PageSourceOCR})
	}
	finishStats(res)
	return res, nil
}

// recognizeWithRetry gives a transient OCR failure exactly one more try.
func recognizeWithRetry(ctx context.Context, opts Options, data []byte, page int) (string, error) {
	var text string
	err := retry.Do(
		func() error {
			pageCtx := ctx
			if opts.PageTimeout > 0 {
				var cancel context.CancelFunc
				pageCtx, cancel = context.WithTimeout(ctx, opts.PageTimeout)
				defer cancel()
			}
			out, err := opts.OCR.RecognizePage(pageCtx, data, page)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
					return appErr.TransientExtraction(fmt.Sprintf("ocr page %d timed out", page), err)
				}
				return err
			}
			text = out
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(appErr.IsTransient),
		retry.OnRetry(func(n uint, err error) {
			logutil.GetLogger(ctx).Info("retrying ocr page", zap.Int("page", page), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	return text, err
}

// readPDFPages returns the native text of every page, empty for pages
// without a text layer. The pdf library panics on some malformed input.
func readPDFPages(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = appErr.Extraction("cannot read pdf", fmt.Errorf("%v", r))
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, appErr.Extraction("cannot read pdf", err)
	}
	total := reader.NumPage()
	if total == 0 {
		return nil, appErr.Extraction("pdf has no pages", nil)
	}
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
