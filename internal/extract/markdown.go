package extract

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/xxxsen/docvault/internal/model"
)

// markdownExtractor renders markdown to plain text on a single page so
// that chunks do not carry markup.
type markdownExtractor struct{}

func (e *markdownExtractor) Extract(ctx context.Context, data []byte, opts Options) (*Result, error) {
	plain := markdownToText(data)
	res := &Result{ContentType: "text/markdown; charset=utf-8"}
	res.Pages = []model.PageText{{Page: 1, Text: plain, Source: model.PageSourceText}}
	if strings.TrimSpace(plain) != "" {
		res.Stats.PagesWithText = 1
	}
	finishStats(res)
	return res, nil
}

func markdownToText(source []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindListItem && n.Kind() != ast.KindList {
				buf.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.URL(source))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	out := strings.TrimSpace(buf.String())
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return out
}
