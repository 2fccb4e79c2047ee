package repo

import (
	"context"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/model"
)

// Lookups return errors.ErrNotFound for missing rows and writes return
// errors.ErrConflict on unique violations, in every implementation.

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type DocumentRepository interface {
	// CreateWithChunks commits the document row and all chunk rows in one
	// transaction. Either both are visible afterwards or neither is.
	CreateWithChunks(ctx context.Context, doc *model.Document, chunks []model.Chunk) error
	// ReplaceChunks swaps the chunk set of a document atomically.
	ReplaceChunks(ctx context.Context, docID string, chunks []model.Chunk, mtime int64) error
	Get(ctx context.Context, id string) (*model.Document, error)
	GetByFilename(ctx context.Context, filename string) (*model.Document, error)
	// List returns documents whose classification is one of levels, newest
	// first. An empty levels list yields no documents.
	List(ctx context.Context, levels []access.Level) ([]model.Document, error)
	UpdateClassification(ctx context.Context, id string, level access.Level, mtime int64) error
	// Delete removes the document and, by cascade, its chunks.
	Delete(ctx context.Context, id string) error
	ListChunks(ctx context.Context, docID string, page int) ([]model.Chunk, error)
}

type CandidateQuery struct {
	Levels   []access.Level
	Filename string
	// Pages restricts the result to the given 1-based pages when set.
	Pages []int
	// Vector and Limit let an implementation pre-trim by vector distance.
	// Callers always re-rank the result.
	Vector []float32
	Limit  int
}

type ChunkRepository interface {
	Candidates(ctx context.Context, q CandidateQuery) ([]model.ChunkCandidate, error)
}

type TemplateRepository interface {
	Create(ctx context.Context, tpl *model.Template) error
	Get(ctx context.Context, id string) (*model.Template, error)
	List(ctx context.Context, levels []access.Level) ([]model.Template, error)
	Delete(ctx context.Context, id string) error
}

type IngestJobRepository interface {
	Create(ctx context.Context, job *model.IngestJob) error
	Get(ctx context.Context, id string) (*model.IngestJob, error)
	Update(ctx context.Context, job *model.IngestJob) error
	DeleteFinishedBefore(ctx context.Context, cutoff int64) (int64, error)
}

type EmbeddingCacheRepository interface {
	Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

func levelArgs(levels []access.Level) []interface{} {
	out := make([]interface{}, 0, len(levels))
	for _, level := range levels {
		out = append(out, level.String())
	}
	return out
}
