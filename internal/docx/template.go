// Package docx reads placeholder fields from contract templates and
// renders them with supplied values. DOCX containers are edited in place:
// only the text nodes that carried a placeholder change.
package docx

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

const mainPart = "word/document.xml"

// FormatFor maps a template filename to its format.
func FormatFor(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx":
		return model.TemplateFormatDOCX, nil
	case ".txt", ".md":
		return model.TemplateFormatText, nil
	}
	return "", appErr.Invalidf("unsupported template type %q", filepath.Ext(filename))
}

func ContentType(format string) string {
	if format == model.TemplateFormatDOCX {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "text/plain; charset=utf-8"
}

func ExtractFields(format string, data []byte) ([]model.TemplateField, error) {
	c := newFieldCollector()
	if format == model.TemplateFormatText {
		if !utf8.Valid(data) {
			return nil, invalidTemplate(nil)
		}
		c.scan(string(data))
		return c.result(), nil
	}
	zr, err := openContainer(data)
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if !isTextPart(f.Name) {
			continue
		}
		raw, err := readEntry(f)
		if err != nil {
			return nil, invalidTemplate(err)
		}
		paras, err := scanParagraphs(raw)
		if err != nil {
			return nil, invalidTemplate(err)
		}
		// Render substitutes within a paragraph, so only markers that
		// fit in one paragraph are fields.
		for _, p := range paras {
			c.scan(p.text())
		}
	}
	return c.result(), nil
}

// Render substitutes every placeholder. Missing values become empty
// strings and the output never contains a placeholder marker.
func Render(format string, data []byte, values map[string]string) ([]byte, error) {
	if format == model.TemplateFormatText {
		if !utf8.Valid(data) {
			return nil, invalidTemplate(nil)
		}
		return []byte(substituteText(string(data), values)), nil
	}
	zr, err := openContainer(data)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, f := range zr.File {
		if !isTextPart(f.Name) {
			if err := zw.Copy(f); err != nil {
				return nil, appErr.Internal("copy template entry", err)
			}
			continue
		}
		raw, err := readEntry(f)
		if err != nil {
			return nil, invalidTemplate(err)
		}
		rendered, changed, err := renderPart(raw, values)
		if err != nil {
			return nil, invalidTemplate(err)
		}
		if !changed {
			if err := zw.Copy(f); err != nil {
				return nil, appErr.Internal("copy template entry", err)
			}
			continue
		}
		hdr := f.FileHeader
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     hdr.Name,
			Comment:  hdr.Comment,
			Method:   hdr.Method,
			Modified: hdr.Modified,
			Extra:    hdr.Extra,
		})
		if err != nil {
			return nil, appErr.Internal("write template entry", err)
		}
		if _, err := w.Write(rendered); err != nil {
			return nil, appErr.Internal("write template entry", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, appErr.Internal("close rendered template", err)
	}
	return out.Bytes(), nil
}

func openContainer(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, invalidTemplate(err)
	}
	for _, f := range zr.File {
		if f.Name == mainPart {
			return zr, nil
		}
	}
	return nil, invalidTemplate(nil)
}

// isTextPart reports whether the entry holds body, header, footer or note
// text that may carry placeholders.
func isTextPart(name string) bool {
	if name == mainPart || name == "word/footnotes.xml" || name == "word/endnotes.xml" {
		return true
	}
	dir, base := path.Split(name)
	if dir != "word/" || !strings.HasSuffix(base, ".xml") {
		return false
	}
	return strings.HasPrefix(base, "header") || strings.HasPrefix(base, "footer")
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func invalidTemplate(cause error) error {
	return &appErr.Error{Kind: appErr.KindValidation, Message: "invalid template", Err: cause}
}
