package extract

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

func TestTextExtractor_SplitsOnFormFeed(t *testing.T) {
	e, err := ForFilename("lease.TXT")
	require.NoError(t, err)
	res, err := e.Extract(context.Background(), []byte("page one\r\nline\fpage two\f\fpage four"), Options{})
	require.NoError(t, err)
	require.Len(t, res.Pages, 4)
	require.Equal(t, "page one\nline", res.Pages[0].Text)
	require.Equal(t, 4, res.Pages[3].Page)
	require.Equal(t, 4, res.Stats.TotalPages)
	require.Equal(t, 3, res.Stats.PagesWithText)
	require.Equal(t, 0, res.Stats.PagesFailed)
	require.Empty(t, res.Warnings)
	require.True(t, res.HasText())
}

func TestMarkdownExtractor_StripsMarkup(t *testing.T) {
	e, err := ForFilename("notes.md")
	require.NoError(t, err)
	res, err := e.Extract(context.Background(), []byte("# Lease\n\nThe **tenant** pays *rent*.\n\n- item one\n- item two\n"), Options{})
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	text := res.Pages[0].Text
	require.Contains(t, text, "Lease")
	require.Contains(t, text, "The tenant pays rent.")
	require.Contains(t, text, "item two")
	require.NotContains(t, text, "**")
	require.NotContains(t, text, "#")
}

func TestForFilename_Unsupported(t *testing.T) {
	_, err := ForFilename("photo.png")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	require.False(t, Supported("x.exe"))
	require.True(t, Supported("x.pdf"))
}

func TestPDFExtractor_MalformedIsExtractionError(t *testing.T) {
	e, err := ForFilename("bad.pdf")
	require.NoError(t, err)
	_, err = e.Extract(context.Background(), []byte("not a pdf at all"), Options{})
	require.ErrorIs(t, err, appErr.ErrExtraction)
}

func TestTextExtractor_InvalidUTF8(t *testing.T) {
	_, err := (&textExtractor{}).Extract(context.Background(), []byte{0xff, 0xfe, 0xfd}, Options{})
	require.ErrorIs(t, err, appErr.ErrExtraction)
}

type scriptedOCR struct {
	calls   atomic.Int32
	results []error
	text    string
}

func (e *scriptedOCR) Name() string { return "scripted" }

func (e *scriptedOCR) RecognizePage(ctx context.Context, pdf []byte, page int) (string, error) {
	n := int(e.calls.Add(1)) - 1
	if n < len(e.results) && e.results[n] != nil {
		return "", e.results[n]
	}
	return e.text, nil
}

func TestPDFPages_TransientOCRRetriedOnce(t *testing.T) {
	engine := &scriptedOCR{results: []error{
		appErr.TransientExtraction("ocr busy", nil),
		appErr.TransientExtraction("ocr busy", nil),
		nil,
	}, text: "never reached"}
	res, err := (&pdfExtractor{}).fromPages(context.Background(), []byte("%PDF"), []string{"Lease terms apply.", ""}, Options{OCR: engine})
	require.NoError(t, err)
	require.EqualValues(t, 2, engine.calls.Load())
	require.Equal(t, []int{2}, res.Stats.FailedPages)
	require.Equal(t, 1, res.Stats.PagesFailed)
	require.Equal(t, 1, res.Stats.PagesWithText)
	require.Equal(t, model.PageSourceFailed, res.Pages[1].Source)
	require.Contains(t, res.Warnings, "failed to extract text from 1 page(s): 2")
}

func TestPDFPages_OCRRecoversOnRetry(t *testing.T) {
	engine := &scriptedOCR{results: []error{appErr.TransientExtraction("ocr busy", nil)}, text: "Scanned clause"}
	res, err := (&pdfExtractor{}).fromPages(context.Background(), []byte("%PDF"), []string{""}, Options{OCR: engine})
	require.NoError(t, err)
	require.EqualValues(t, 2, engine.calls.Load())
	require.Equal(t, "Scanned clause", res.Pages[0].Text)
	require.Equal(t, model.PageSourceOCR, res.Pages[0].Source)
	require.Equal(t, 1, res.Stats.PagesOCRUsed)
	require.Empty(t, res.Stats.FailedPages)
}

func TestPDFPages_PermanentOCRFailureNotRetried(t *testing.T) {
	engine := &scriptedOCR{results: []error{errors.New("bad image")}}
	res, err := (&pdfExtractor{}).fromPages(context.Background(), []byte("%PDF"), []string{""}, Options{OCR: engine})
	require.NoError(t, err)
	require.EqualValues(t, 1, engine.calls.Load())
	require.Equal(t, []int{1}, res.Stats.FailedPages)
	require.False(t, res.HasText())
}
