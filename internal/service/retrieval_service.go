package service

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/ai"
	"github.com/xxxsen/docvault/internal/model"
	"github.com/xxxsen/docvault/internal/repo"
)

const (
	defaultTopK        = 15
	defaultMaxTopK     = 50
	minCandidateWindow = 200

	// Chunks whose word sets overlap more than this are the same text.
	nearDuplicateJaccard = 0.9
	pageHitScore         = 1.0
	pageNeighbourScore   = 0.5
)

var pageQueryPattern = regexp.MustCompile(`(?i)(?:page|หน้า)\s*(\d+)`)

// QueryEmbedder embeds a question for similarity search.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
}

type RetrievalService struct {
	chunks      repo.ChunkRepository
	embedder    QueryEmbedder
	defaultTopK int
	maxTopK     int
}

func NewRetrievalService(chunks repo.ChunkRepository, embedder QueryEmbedder, defaultK, maxK int) *RetrievalService {
	if maxK <= 0 {
		maxK = defaultMaxTopK
	}
	if defaultK <= 0 || defaultK > maxK {
		defaultK = min(defaultTopK, maxK)
	}
	return &RetrievalService{chunks: chunks, embedder: embedder, defaultTopK: defaultK, maxTopK: maxK}
}

type RetrieveQuery struct {
	Question string
	Filename string
	TopK     int
}

// ClampTopK maps a requested top_k into [1, max]; zero or negative
// selects the default.
func (s *RetrievalService) ClampTopK(k int) int {
	if k <= 0 {
		return s.defaultTopK
	}
	return min(k, s.maxTopK)
}

// Retrieve returns the chunks most similar to the question among those
// the subject may read. Candidates are restricted before scoring, so an
// inaccessible chunk can never influence the ranking.
func (s *RetrievalService) Retrieve(ctx context.Context, subject access.Subject, q RetrieveQuery) ([]model.ScoredChunk, error) {
	levels := access.AccessibleLevels(subject.MaxLevel)
	if len(levels) == 0 {
		return []model.ScoredChunk{}, nil
	}
	topK := s.ClampTopK(q.TopK)
	if q.Filename != "" {
		if page, ok := requestedPage(q.Question); ok {
			return s.retrievePage(ctx, subject, levels, q.Filename, page, topK)
		}
	}
	vec, err := s.embedder.Embed(ctx, q.Question, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	candidates, err := s.chunks.Candidates(ctx, repo.CandidateQuery{
		Levels:   levels,
		Filename: q.Filename,
		Vector:   vec,
		Limit:    max(topK*10, minCandidateWindow),
	})
	if err != nil {
		return nil, err
	}
	scored := make([]model.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		if !access.CanAccess(subject.MaxLevel, c.Classification) {
			continue
		}
		scored = append(scored, model.ScoredChunk{ChunkCandidate: c, Score: cosine(vec, c.Embedding)})
	}
	rankChunks(scored)
	scored = dropNearDuplicates(scored, topK)
	logutil.GetLogger(ctx).Debug("chunks retrieved",
		zap.String("user_id", subject.UserID),
		zap.String("filename", q.Filename),
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(scored)))
	return scored, nil
}

// retrievePage answers "page N" questions about one document with that
// page and its neighbours. A page the document does not have yields
// nothing.
func (s *RetrievalService) retrievePage(ctx context.Context, subject access.Subject, levels []access.Level, filename string, page, topK int) ([]model.ScoredChunk, error) {
	candidates, err := s.chunks.Candidates(ctx, repo.CandidateQuery{
		Levels:   levels,
		Filename: filename,
		Pages:    []int{page - 1, page, page + 1},
	})
	if err != nil {
		return nil, err
	}
	scored := make([]model.ScoredChunk, 0, len(candidates))
	hit := false
	for _, c := range candidates {
		if !access.CanAccess(subject.MaxLevel, c.Classification) {
			continue
		}
		score := pageNeighbourScore
		if c.Page == page {
			score = pageHitScore
			hit = true
		}
		scored = append(scored, model.ScoredChunk{ChunkCandidate: c, Score: score})
	}
	if !hit {
		return []model.ScoredChunk{}, nil
	}
	rankChunks(scored)
	if len(scored) > topK {
		scored = scored[:topK]
	}
	logutil.GetLogger(ctx).Debug("page chunks retrieved",
		zap.String("user_id", subject.UserID),
		zap.String("filename", filename),
		zap.Int("page", page),
		zap.Int("returned", len(scored)))
	return scored, nil
}

func requestedPage(question string) (int, bool) {
	m := pageQueryPattern.FindStringSubmatch(question)
	if m == nil {
		return 0, false
	}
	page, err := strconv.Atoi(m[1])
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

// dropNearDuplicates keeps the first of any chunks with nearly the same
// words and stops once limit chunks are kept. Items must be ranked.
func dropNearDuplicates(items []model.ScoredChunk, limit int) []model.ScoredChunk {
	out := make([]model.ScoredChunk, 0, min(len(items), limit))
	kept := make([]map[string]struct{}, 0, limit)
	for _, it := range items {
		if len(out) >= limit {
			break
		}
		words := wordSet(it.Text)
		dup := false
		for _, k := range kept {
			if jaccard(words, k) > nearDuplicateJaccard {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		out = append(out, it)
		kept = append(kept, words)
	}
	return out
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// rankChunks orders by score, then newer upload, then page, then sequence.
func rankChunks(items []model.ScoredChunk) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.UploadDate != b.UploadDate {
			return a.UploadDate > b.UploadDate
		}
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Seq < b.Seq
	})
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
