// Package index turns page texts into embedded, retrievable chunks.
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/xxxsen/docvault/internal/model"
)

const (
	defaultChunkSize    = 1500
	defaultChunkOverlap = 300
	defaultMinChunkSize = 100
)

var defaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", " "}

type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

type Chunker struct {
	cfg      ChunkerConfig
	splitter textsplitter.TextSplitter
}

func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
		if defaultChunkOverlap < cfg.ChunkSize {
			cfg.ChunkOverlap = defaultChunkOverlap
		}
	}
	if cfg.MinChunkSize < 0 {
		cfg.MinChunkSize = defaultMinChunkSize
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithSeparators(defaultSeparators),
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	return &Chunker{cfg: cfg, splitter: splitter}
}

// Split chunks every page independently so that a chunk never spans two
// pages. Sequence numbers are global across the document.
func (c *Chunker) Split(docID string, pages []model.PageText) ([]model.Chunk, error) {
	out := make([]model.Chunk, 0, len(pages))
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		pieces, err := c.splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("split page %d: %w", page.Page, err)
		}
		for _, sp := range c.mergeShort(page.Text, c.locateAll(page.Text, pieces)) {
			seq := len(out)
			out = append(out, model.Chunk{
				ID:         chunkID(docID, seq, sp.text),
				DocumentID: docID,
				Seq:        seq,
				Page:       page.Page,
				Start:      sp.runeStart(page.Text),
				End:        sp.runeEnd(page.Text),
				Text:       sp.text,
			})
		}
	}
	return out, nil
}

// span is a byte range of the page text. found is false when the splitter
// produced text that is not a literal substring of the page.
type span struct {
	start, end int
	text       string
	found      bool
}

func (s span) runeStart(text string) int {
	if !s.found {
		return 0
	}
	return utf8.RuneCountInString(text[:s.start])
}

func (s span) runeEnd(text string) int {
	if !s.found {
		return utf8.RuneCountInString(s.text)
	}
	return utf8.RuneCountInString(text[:s.end])
}

func (c *Chunker) locateAll(text string, pieces []string) []span {
	spans := make([]span, 0, len(pieces))
	cursor := 0
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		idx := -1
		if cursor < len(text) {
			if i := strings.Index(text[cursor:], piece); i >= 0 {
				idx = cursor + i
			}
		}
		if idx < 0 {
			idx = strings.Index(text, piece)
		}
		if idx < 0 {
			spans = append(spans, span{text: piece})
			continue
		}
		spans = append(spans, span{start: idx, end: idx + len(piece), text: piece, found: true})
		cursor = idx + 1
	}
	return spans
}

// mergeShort folds spans below the minimum size into their predecessor on
// the same page. A page whose whole text is short keeps its single span.
func (c *Chunker) mergeShort(text string, spans []span) []span {
	merged := make([]span, 0, len(spans))
	for _, sp := range spans {
		n := len(merged)
		if n == 0 || utf8.RuneCountInString(sp.text) >= c.cfg.MinChunkSize {
			merged = append(merged, sp)
			continue
		}
		last := merged[n-1]
		if last.found && sp.found && sp.start >= last.start {
			last.end = max(last.end, sp.end)
			last.text = text[last.start:last.end]
		} else {
			last.text = last.text + " " + sp.text
			last.found = false
		}
		merged[n-1] = last
	}
	return merged
}

func chunkID(docID string, seq int, text string) string {
	th := sha256.Sum256([]byte(text))
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", docID, seq, hex.EncodeToString(th[:]))))
	return hex.EncodeToString(sum[:])
}
