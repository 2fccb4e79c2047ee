// Package memrepo keeps every repository in process memory. It backs the
// "memory" database driver and the service and handler tests.
package memrepo

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
	"github.com/xxxsen/docvault/internal/repo"
)

var (
	_ repo.UserRepository           = (*UserRepo)(nil)
	_ repo.DocumentRepository       = (*DocumentRepo)(nil)
	_ repo.ChunkRepository          = (*ChunkRepo)(nil)
	_ repo.TemplateRepository       = (*TemplateRepo)(nil)
	_ repo.IngestJobRepository      = (*IngestJobRepo)(nil)
	_ repo.EmbeddingCacheRepository = (*EmbeddingCacheRepo)(nil)
)

func levelSet(levels []access.Level) map[access.Level]struct{} {
	set := make(map[access.Level]struct{}, len(levels))
	for _, level := range levels {
		set[level] = struct{}{}
	}
	return set
}

type UserRepo struct {
	mu    sync.RWMutex
	users map[string]model.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]model.User)}
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Username, user.Username) {
			return appErr.Conflict("username already exists")
		}
	}
	if _, ok := r.users[user.ID]; ok {
		return appErr.Conflict("user already exists")
	}
	r.users[user.ID] = *user
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, appErr.NotFound("user not found")
	}
	return &u, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username == username {
			out := u
			return &out, nil
		}
	}
	return nil, appErr.NotFound("user not found")
}

func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *UserRepo) Update(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[user.ID]
	if !ok {
		return appErr.NotFound("user not found")
	}
	cur.PasswordHash = user.PasswordHash
	cur.Role = user.Role
	cur.MaxLevel = user.MaxLevel
	cur.Mtime = user.Mtime
	r.users[user.ID] = cur
	return nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return appErr.NotFound("user not found")
	}
	delete(r.users, id)
	return nil
}

func (r *UserRepo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), nil
}

type DocumentRepo struct {
	mu     sync.RWMutex
	docs   map[string]model.Document
	chunks map[string][]model.Chunk
}

func NewDocumentRepo() *DocumentRepo {
	return &DocumentRepo{
		docs:   make(map[string]model.Document),
		chunks: make(map[string][]model.Chunk),
	}
}

func cloneChunks(chunks []model.Chunk) []model.Chunk {
	out := make([]model.Chunk, len(chunks))
	for i, c := range chunks {
		c.Embedding = append([]float32(nil), c.Embedding...)
		out[i] = c
	}
	return out
}

func (r *DocumentRepo) CreateWithChunks(ctx context.Context, doc *model.Document, chunks []model.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return appErr.Conflict("document already exists")
	}
	for _, d := range r.docs {
		if d.Filename == doc.Filename {
			return appErr.Conflict("document already exists")
		}
	}
	doc.ChunkCount = len(chunks)
	r.docs[doc.ID] = *doc
	r.chunks[doc.ID] = cloneChunks(chunks)
	return nil
}

func (r *DocumentRepo) ReplaceChunks(ctx context.Context, docID string, chunks []model.Chunk, mtime int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return appErr.NotFound("document not found")
	}
	doc.ChunkCount = len(chunks)
	doc.Mtime = mtime
	r.docs[docID] = doc
	r.chunks[docID] = cloneChunks(chunks)
	return nil
}

func (r *DocumentRepo) Get(ctx context.Context, id string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, appErr.NotFound("document not found")
	}
	return &doc, nil
}

func (r *DocumentRepo) GetByFilename(ctx context.Context, filename string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, doc := range r.docs {
		if doc.Filename == filename {
			out := doc
			return &out, nil
		}
	}
	return nil, appErr.NotFound("document not found")
}

func (r *DocumentRepo) List(ctx context.Context, levels []access.Level) ([]model.Document, error) {
	allowed := levelSet(levels)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Document, 0)
	for _, doc := range r.docs {
		if _, ok := allowed[doc.Classification]; ok {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadDate != out[j].UploadDate {
			return out[i].UploadDate > out[j].UploadDate
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *DocumentRepo) UpdateClassification(ctx context.Context, id string, level access.Level, mtime int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return appErr.NotFound("document not found")
	}
	doc.Classification = level
	doc.Mtime = mtime
	r.docs[id] = doc
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return appErr.NotFound("document not found")
	}
	delete(r.docs, id)
	delete(r.chunks, id)
	return nil
}

func (r *DocumentRepo) ListChunks(ctx context.Context, docID string, page int) ([]model.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Chunk, 0)
	for _, c := range r.chunks[docID] {
		if page > 0 && c.Page != page {
			continue
		}
		out = append(out, c)
	}
	return cloneChunks(out), nil
}

// ChunkRepo reads the chunks held by a DocumentRepo. It ignores the query
// vector and returns every permitted chunk.
type ChunkRepo struct {
	docs *DocumentRepo
}

func NewChunkRepo(docs *DocumentRepo) *ChunkRepo {
	return &ChunkRepo{docs: docs}
}

func (r *ChunkRepo) Candidates(ctx context.Context, q repo.CandidateQuery) ([]model.ChunkCandidate, error) {
	allowed := levelSet(q.Levels)
	r.docs.mu.RLock()
	defer r.docs.mu.RUnlock()
	out := make([]model.ChunkCandidate, 0)
	for id, doc := range r.docs.docs {
		if _, ok := allowed[doc.Classification]; !ok {
			continue
		}
		if q.Filename != "" && doc.Filename != q.Filename {
			continue
		}
		for _, c := range cloneChunks(r.docs.chunks[id]) {
			if len(q.Pages) > 0 && !slices.Contains(q.Pages, c.Page) {
				continue
			}
			out = append(out, model.ChunkCandidate{
				Chunk:          c,
				Filename:       doc.Filename,
				Classification: doc.Classification,
				UploadDate:     doc.UploadDate,
			})
		}
	}
	return out, nil
}

type TemplateRepo struct {
	mu        sync.RWMutex
	templates map[string]model.Template
}

func NewTemplateRepo() *TemplateRepo {
	return &TemplateRepo{templates: make(map[string]model.Template)}
}

func (r *TemplateRepo) Create(ctx context.Context, tpl *model.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[tpl.ID]; ok {
		return appErr.Conflict("template already exists")
	}
	r.templates[tpl.ID] = *tpl
	return nil
}

func (r *TemplateRepo) Get(ctx context.Context, id string) (*model.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.templates[id]
	if !ok {
		return nil, appErr.NotFound("template not found")
	}
	return &tpl, nil
}

func (r *TemplateRepo) List(ctx context.Context, levels []access.Level) ([]model.Template, error) {
	allowed := levelSet(levels)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Template, 0)
	for _, tpl := range r.templates {
		if _, ok := allowed[tpl.Classification]; ok {
			out = append(out, tpl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mtime != out[j].Mtime {
			return out[i].Mtime > out[j].Mtime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *TemplateRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[id]; !ok {
		return appErr.NotFound("template not found")
	}
	delete(r.templates, id)
	return nil
}

type IngestJobRepo struct {
	mu   sync.RWMutex
	jobs map[string]model.IngestJob
}

func NewIngestJobRepo() *IngestJobRepo {
	return &IngestJobRepo{jobs: make(map[string]model.IngestJob)}
}

func (r *IngestJobRepo) Create(ctx context.Context, job *model.IngestJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return appErr.Conflict("ingest job already exists")
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *IngestJobRepo) Get(ctx context.Context, id string) (*model.IngestJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, appErr.NotFound("ingest job not found")
	}
	return &job, nil
}

func (r *IngestJobRepo) Update(ctx context.Context, job *model.IngestJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return appErr.NotFound("ingest job not found")
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *IngestJobRepo) DeleteFinishedBefore(ctx context.Context, cutoff int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, job := range r.jobs {
		if job.State.Terminal() && job.Mtime < cutoff {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

type EmbeddingCacheRepo struct {
	mu    sync.RWMutex
	items map[string]model.EmbeddingCache
}

func NewEmbeddingCacheRepo() *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{items: make(map[string]model.EmbeddingCache)}
}

func cacheKey(modelName, taskType, contentHash string) string {
	return modelName + "|" + taskType + "|" + contentHash
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[cacheKey(modelName, taskType, contentHash)]
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), item.Embedding...), true, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *item
	stored.Embedding = append([]float32(nil), item.Embedding...)
	r.items[cacheKey(item.ModelName, item.TaskType, item.ContentHash)] = stored
	return nil
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key, item := range r.items {
		if item.Ctime < cutoff {
			delete(r.items, key)
			n++
		}
	}
	return n, nil
}
