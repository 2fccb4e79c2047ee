package docx

import (
	"bytes"
	"encoding/xml"
	"io"
	"sort"
	"strings"
)

// textNode is one w:t element. Offsets are byte positions in the part.
type textNode struct {
	tagStart, tagEnd int // the start tag
	start, end       int // character data
	text             string
	preserve         bool
	selfClosing      bool
}

type paragraph struct {
	nodes []textNode
}

func (p paragraph) text() string {
	var sb strings.Builder
	for _, n := range p.nodes {
		sb.WriteString(n.text)
	}
	return sb.String()
}

// scanParagraphs returns the w:t nodes of every w:p in document order. Text
// outside a paragraph is ignored.
func scanParagraphs(data []byte) ([]paragraph, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		out    []paragraph
		depth  int
		cur    *paragraph
		node   *textNode
		inText bool
	)
	for {
		before := int(dec.InputOffset())
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		after := int(dec.InputOffset())
		switch t := tok.(type) {
		case xml.StartElement:
			if isW(t.Name, "p") {
				if depth == 0 {
					cur = &paragraph{}
				}
				depth++
				continue
			}
			if cur != nil && isW(t.Name, "t") {
				node = &textNode{tagStart: before, tagEnd: after, start: after, end: after}
				for _, a := range t.Attr {
					if a.Name.Space == "xml" && a.Name.Local == "space" && a.Value == "preserve" {
						node.preserve = true
					}
				}
				inText = true
			}
		case xml.CharData:
			if inText && node != nil {
				if node.text == "" && node.start == node.end {
					node.start = before
				}
				node.text += string(t)
				node.end = after
			}
		case xml.EndElement:
			if inText && isW(t.Name, "t") {
				if before == after {
					node.selfClosing = true
				}
				cur.nodes = append(cur.nodes, *node)
				node = nil
				inText = false
				continue
			}
			if isW(t.Name, "p") && depth > 0 {
				depth--
				if depth == 0 {
					out = append(out, *cur)
					cur = nil
				}
			}
		}
	}
	if depth != 0 || inText {
		return nil, io.ErrUnexpectedEOF
	}
	return out, nil
}

func isW(n xml.Name, local string) bool {
	return n.Space == "w" && n.Local == local
}

type edit struct {
	start, end int
	repl       []byte
}

// renderPart substitutes markers paragraph by paragraph and rewrites only
// the character data of the w:t nodes that held marker text. It reports
// whether anything changed.
func renderPart(data []byte, values map[string]string) ([]byte, bool, error) {
	paras, err := scanParagraphs(data)
	if err != nil {
		return nil, false, err
	}
	var edits []edit
	for _, p := range paras {
		edits = append(edits, paragraphEdits(p, values)...)
	}
	if len(edits) == 0 {
		return data, false, nil
	}
	return applyEdits(data, edits), true, nil
}

func paragraphEdits(p paragraph, values map[string]string) []edit {
	joined := p.text()
	matches := markerPattern.FindAllStringSubmatchIndex(joined, -1)
	if len(matches) == 0 {
		return nil
	}
	texts := make([]string, len(p.nodes))
	touched := make([]bool, len(p.nodes))
	offset := 0
	for i, n := range p.nodes {
		nodeStart, nodeEnd := offset, offset+len(n.text)
		offset = nodeEnd
		texts[i] = n.text
		if n.selfClosing {
			continue
		}
		var sb strings.Builder
		for pos := nodeStart; pos < nodeEnd; pos++ {
			m := matchAt(matches, pos)
			if m == nil {
				sb.WriteByte(joined[pos])
				continue
			}
			touched[i] = true
			if pos == m[0] {
				sb.WriteString(neutralize(values[joined[m[2]:m[3]]]))
			}
		}
		texts[i] = sb.String()
	}
	breakNodeMarkers(texts, touched)

	var edits []edit
	for i, n := range p.nodes {
		if !touched[i] {
			continue
		}
		newText := texts[i]
		var buf bytes.Buffer
		_ = xml.EscapeText(&buf, []byte(newText))
		edits = append(edits, edit{start: n.start, end: n.end, repl: buf.Bytes()})
		if !n.preserve && newText != strings.TrimSpace(newText) {
			edits = append(edits, edit{start: n.tagStart, end: n.tagEnd, repl: []byte(`<w:t xml:space="preserve">`)})
		}
	}
	return edits
}

// breakNodeMarkers is breakMarkers over text spread across nodes. The space
// goes into the node holding the second brace.
func breakNodeMarkers(texts []string, touched []bool) {
	for {
		loc := markerPattern.FindStringIndex(strings.Join(texts, ""))
		if loc == nil {
			return
		}
		pos := loc[0] + 1
		offset := 0
		for i, t := range texts {
			if pos < offset+len(t) {
				at := pos - offset
				texts[i] = t[:at] + " " + t[at:]
				touched[i] = true
				break
			}
			offset += len(t)
		}
	}
}

func matchAt(matches [][]int, pos int) []int {
	for _, m := range matches {
		if pos >= m[0] && pos < m[1] {
			return m
		}
	}
	return nil
}

func applyEdits(data []byte, edits []edit) []byte {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var out bytes.Buffer
	out.Grow(len(data))
	last := 0
	for _, e := range edits {
		out.Write(data[last:e.start])
		out.Write(e.repl)
		last = e.end
	}
	out.Write(data[last:])
	return out.Bytes()
}
