package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/ai"
	"github.com/xxxsen/docvault/internal/model"
)

// InsufficientInformationAnswer is returned verbatim when nothing
// accessible matched the question.
const InsufficientInformationAnswer = "No relevant information was found in the documents available to you."

const maxExtractiveSentences = 5

var (
	citationPattern = regexp.MustCompile(`\[(\d+)\]`)
	sentenceEnd     = regexp.MustCompile(`[.!?。]+\s+|\n+`)
)

type AnswerComposer struct {
	ai    *ai.Manager
	cache *expirable.LRU[string, model.Answer]
}

func NewAnswerComposer(manager *ai.Manager, cacheSize int, ttl time.Duration) *AnswerComposer {
	c := &AnswerComposer{ai: manager}
	if cacheSize > 0 {
		c.cache = expirable.NewLRU[string, model.Answer](cacheSize, nil, ttl)
	}
	return c
}

// Compose builds an answer strictly from chunks. Sources are the distinct
// (filename, page) pairs in the order they are first cited.
func (c *AnswerComposer) Compose(ctx context.Context, question string, chunks []model.ScoredChunk) (*model.Answer, error) {
	if len(chunks) == 0 {
		return &model.Answer{Answer: InsufficientInformationAnswer, Sources: []model.Source{}}, nil
	}
	key := answerKey(question, chunks)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			return copyAnswer(cached), nil
		}
	}
	var answer *model.Answer
	if c.ai != nil && c.ai.HasGenerator() {
		generated, err := c.generate(ctx, question, chunks)
		if err == nil {
			answer = generated
		} else {
			logutil.GetLogger(ctx).Warn("generate answer failed, using extractive answer", zap.Error(err))
		}
	}
	if answer == nil {
		answer = extractiveAnswer(question, chunks)
	}
	if c.cache != nil {
		c.cache.Add(key, *copyAnswer(*answer))
	}
	return answer, nil
}

func (c *AnswerComposer) generate(ctx context.Context, question string, chunks []model.ScoredChunk) (*model.Answer, error) {
	passages := make([]ai.Passage, 0, len(chunks))
	for i, ch := range chunks {
		passages = append(passages, ai.Passage{Index: i + 1, Filename: ch.Filename, Page: ch.Page, Text: ch.Text})
	}
	text, err := c.ai.Answer(ctx, question, passages)
	if err != nil {
		return nil, err
	}
	var cited []int
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(chunks) {
			continue
		}
		cited = append(cited, n-1)
	}
	if len(cited) == 0 {
		for i := range chunks {
			cited = append(cited, i)
		}
	}
	sources := newSourceList()
	for _, idx := range cited {
		sources.add(chunks[idx])
	}
	return &model.Answer{Answer: text, Sources: sources.items}, nil
}

type sourceList struct {
	index map[model.Source]int
	items []model.Source
}

func newSourceList() *sourceList {
	return &sourceList{index: make(map[model.Source]int), items: []model.Source{}}
}

// add returns the 1-based citation number of the chunk's source.
func (l *sourceList) add(ch model.ScoredChunk) int {
	src := model.Source{Filename: ch.Filename, Page: ch.Page}
	if n, ok := l.index[src]; ok {
		return n
	}
	l.items = append(l.items, src)
	l.index[src] = len(l.items)
	return len(l.items)
}

type sentence struct {
	text  string
	chunk int
	pos   int
	score int
}

// extractiveAnswer quotes the sentences that share the most terms with the
// question. It never produces text that is not in a chunk.
func extractiveAnswer(question string, chunks []model.ScoredChunk) *model.Answer {
	terms := make(map[string]struct{})
	for _, t := range ai.Tokenize(question) {
		if len([]rune(t)) > 1 {
			terms[t] = struct{}{}
		}
	}
	var all []sentence
	for ci, ch := range chunks {
		for pi, sent := range splitSentences(ch.Text) {
			score := 0
			seen := make(map[string]struct{})
			for _, t := range ai.Tokenize(sent) {
				if _, ok := terms[t]; !ok {
					continue
				}
				if _, dup := seen[t]; dup {
					continue
				}
				seen[t] = struct{}{}
				score++
			}
			all = append(all, sentence{text: sent, chunk: ci, pos: pi, score: score})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		if all[i].chunk != all[j].chunk {
			return all[i].chunk < all[j].chunk
		}
		return all[i].pos < all[j].pos
	})
	picked := make([]sentence, 0, maxExtractiveSentences)
	used := make(map[string]struct{})
	for _, s := range all {
		if len(picked) == maxExtractiveSentences {
			break
		}
		if s.score == 0 && len(picked) > 0 {
			break
		}
		if _, dup := used[s.text]; dup {
			continue
		}
		used[s.text] = struct{}{}
		picked = append(picked, s)
	}
	sources := newSourceList()
	parts := make([]string, 0, len(picked))
	for _, s := range picked {
		n := sources.add(chunks[s.chunk])
		parts = append(parts, fmt.Sprintf("%s [%d]", s.text, n))
	}
	return &model.Answer{Answer: strings.Join(parts, " "), Sources: sources.items}
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.Join(strings.Fields(text[last:loc[1]]), " "); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.Join(strings.Fields(text[last:]), " "); s != "" {
		out = append(out, s)
	}
	return out
}

func answerKey(question string, chunks []model.ScoredChunk) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(question)))
	for _, ch := range chunks {
		h.Write([]byte{0})
		h.Write([]byte(ch.ID))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func copyAnswer(a model.Answer) *model.Answer {
	out := model.Answer{Answer: a.Answer, Sources: make([]model.Source, len(a.Sources))}
	copy(out.Sources, a.Sources)
	return &out
}
