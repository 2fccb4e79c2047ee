package docx

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

const (
	testDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>Tenant: {{ten</w:t></w:r><w:r><w:t>ant_name}} pays</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">Rent {{ rent }} &amp; {{tenant_name}}</w:t></w:r><w:r><w:t/></w:r></w:p>` +
		`</w:body></w:document>`
	testHeader = `<?xml version="1.0" encoding="UTF-8"?>
<w:hdr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:p><w:r><w:t>Effective: {{effectiveDate}}</w:t></w:r></w:p></w:hdr>`
	testStyles = `<?xml version="1.0"?><w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><!-- {{ not_a_field }} --></w:styles>`
)

func buildDocx(t *testing.T) []byte {
	return buildDocxParts(t, testDocument, testHeader)
}

func wrapBody(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`
}

func buildDocxParts(t *testing.T, document, header string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []struct{ name, body string }{
		{"[Content_Types].xml", `<Types/>`},
		{"word/document.xml", document},
		{"word/header1.xml", header},
		{"word/styles.xml", testStyles},
	} {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readPart(t *testing.T, data []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			raw, err := io.ReadAll(rc)
			require.NoError(t, err)
			return string(raw)
		}
	}
	t.Fatalf("part %s not found", name)
	return ""
}

func TestExtractFields_DOCX(t *testing.T) {
	fields, err := ExtractFields(model.TemplateFormatDOCX, buildDocx(t))
	require.NoError(t, err)
	require.Len(t, fields, 3)
	require.Equal(t, "tenant_name", fields[0].Name)
	require.Equal(t, "Tenant Name", fields[0].Label)
	require.Contains(t, fields[0].Context, "Tenant: {{tenant_name}} pays")
	require.Equal(t, "rent", fields[1].Name)
	require.Equal(t, "effectiveDate", fields[2].Name)
	require.Equal(t, "Effective Date", fields[2].Label)
}

func TestRender_DOCX(t *testing.T) {
	src := buildDocx(t)
	out, err := Render(model.TemplateFormatDOCX, src, map[string]string{
		"tenant_name": "Acme & Co",
		"rent":        "{{evil}}",
	})
	require.NoError(t, err)

	doc := readPart(t, out, "word/document.xml")
	require.NotContains(t, doc, "{{")
	require.Contains(t, doc, `<w:rPr><w:b/></w:rPr><w:t>Tenant: Acme &amp; Co</w:t>`)
	require.Contains(t, doc, `<w:t xml:space="preserve"> pays</w:t>`)
	require.Contains(t, doc, `Rent { {evil}} &amp; Acme &amp; Co</w:t>`)
	require.Contains(t, doc, `<w:t/>`)

	hdr := readPart(t, out, "word/header1.xml")
	require.Contains(t, hdr, `<w:t xml:space="preserve">Effective: </w:t>`)

	require.Equal(t, testStyles, readPart(t, out, "word/styles.xml"))

	fields, err := ExtractFields(model.TemplateFormatDOCX, out)
	require.NoError(t, err)
	require.Empty(t, fields)
}

func TestRender_Text(t *testing.T) {
	src := []byte("Dear {{ name }},\nyour ref is {{ref}}. Again {{name}}.")
	fields, err := ExtractFields(model.TemplateFormatText, src)
	require.NoError(t, err)
	require.Len(t, fields, 2)

	out, err := Render(model.TemplateFormatText, src, map[string]string{"name": "Bob"})
	require.NoError(t, err)
	require.Equal(t, "Dear Bob,\nyour ref is . Again Bob.", string(out))
}

func TestExtractFields_MarkerAcrossParagraphsIsNotAField(t *testing.T) {
	src := buildDocxParts(t,
		wrapBody(`<w:p><w:r><w:t xml:space="preserve">Name: {{</w:t></w:r></w:p><w:p><w:r><w:t>tenant}} end</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Signed {{signer}}</w:t></w:r></w:p>`),
		testHeader)
	fields, err := ExtractFields(model.TemplateFormatDOCX, src)
	require.NoError(t, err)
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"signer", "effectiveDate"}, names)

	out, err := Render(model.TemplateFormatDOCX, src, map[string]string{"tenant": "Bob", "signer": "Ann"})
	require.NoError(t, err)
	doc := readPart(t, out, "word/document.xml")
	require.Contains(t, doc, "Signed Ann")
	require.NotContains(t, doc, "Bob")
	rendered, err := ExtractFields(model.TemplateFormatDOCX, out)
	require.NoError(t, err)
	require.Empty(t, rendered)
}

func TestRender_Text_ValueCannotCompleteMarker(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		values map[string]string
		want   string
	}{
		{"brace before marker", "x{{{a}}", map[string]string{"a": "{b}}"}, "x{ {b}}"},
		{"empty value joins braces", "x{{{a}}{y}}", map[string]string{}, "x{ {y}}"},
		{"value opens marker", "{{a}}b}}", map[string]string{"a": "{{"}, "{ {b}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Render(model.TemplateFormatText, []byte(tt.text), tt.values)
			require.NoError(t, err)
			require.Equal(t, tt.want, string(out))
			fields, err := ExtractFields(model.TemplateFormatText, out)
			require.NoError(t, err)
			require.Empty(t, fields)
		})
	}
}

func TestRender_DOCX_ValueCannotCompleteMarker(t *testing.T) {
	src := buildDocxParts(t,
		wrapBody(`<w:p><w:r><w:t>x{</w:t></w:r><w:r><w:t>{{a}}</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>y{{{b}}{z}}</w:t></w:r></w:p>`),
		testHeader)
	out, err := Render(model.TemplateFormatDOCX, src, map[string]string{"a": "{b}}", "effectiveDate": "today"})
	require.NoError(t, err)
	doc := readPart(t, out, "word/document.xml")
	require.Contains(t, doc, `<w:t>x{</w:t>`)
	require.Contains(t, doc, `<w:t xml:space="preserve"> {b}}</w:t>`)
	require.Contains(t, doc, `<w:t>y{ {z}}</w:t>`)
	fields, err := ExtractFields(model.TemplateFormatDOCX, out)
	require.NoError(t, err)
	require.Empty(t, fields)
}

func TestInvalidTemplate(t *testing.T) {
	_, err := ExtractFields(model.TemplateFormatDOCX, []byte("PK garbage"))
	require.ErrorIs(t, err, appErr.ErrInvalid)
	require.Equal(t, "invalid template", appErr.MessageOf(err))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, _ = w.Write([]byte(`<w:document xmlns:w="x"><w:p><w:t>unclosed`))
	require.NoError(t, zw.Close())
	_, err = Render(model.TemplateFormatDOCX, buf.Bytes(), nil)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestFormatFor(t *testing.T) {
	f, err := FormatFor("Lease.DOCX")
	require.NoError(t, err)
	require.Equal(t, model.TemplateFormatDOCX, f)
	f, err = FormatFor("a.md")
	require.NoError(t, err)
	require.Equal(t, model.TemplateFormatText, f)
	_, err = FormatFor("a.pdf")
	require.Error(t, err)
	require.True(t, strings.HasPrefix(ContentType(model.TemplateFormatDOCX), "application/vnd"))
}
