package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/ai"
	"github.com/xxxsen/docvault/internal/filestore"
	"github.com/xxxsen/docvault/internal/index"
	"github.com/xxxsen/docvault/internal/model"
	"github.com/xxxsen/docvault/internal/repo/memrepo"
)

type testEnv struct {
	users     *memrepo.UserRepo
	docRepo   *memrepo.DocumentRepo
	jobRepo   *memrepo.IngestJobRepo
	store     filestore.Store
	manager   *ai.Manager
	auth      *AuthService
	userSvc   *UserService
	documents *DocumentService
	ingest    *IngestService
	retrieval *RetrievalService
	composer  *AnswerComposer
	qa        *QAService
	templates *TemplateService
}

func newTestEnv(t *testing.T, generator ai.IGenerator) *testEnv {
	t.Helper()
	env := &testEnv{
		users:   memrepo.NewUserRepo(),
		docRepo: memrepo.NewDocumentRepo(),
		jobRepo: memrepo.NewIngestJobRepo(),
		store:   filestore.NewLocal(t.TempDir()),
	}
	embedder := ai.NewEmbedder(ai.NewHashProvider(256), "hash")
	env.manager = ai.NewManager(generator, embedder, ai.ManagerConfig{Timeout: 5, MaxInputChars: 4000})
	indexer := index.NewIndexer(index.NewChunker(index.ChunkerConfig{ChunkSize: 300, ChunkOverlap: 60, MinChunkSize: 30}), embedder)
	env.auth = NewAuthService(env.users, []byte("test-secret"), time.Hour)
	env.userSvc = NewUserService(env.users)
	env.documents = NewDocumentService(env.docRepo, env.store)
	env.ingest = NewIngestService(env.docRepo, env.jobRepo, env.store, nil, indexer, env.manager, IngestConfig{
		MaxUploadBytes: 1 << 20,
		ExtractTimeout: 10 * time.Second,
		PageTimeout:    time.Second,
		Workers:        2,
	})
	env.retrieval = NewRetrievalService(memrepo.NewChunkRepo(env.docRepo), env.manager, 15, 50)
	env.composer = NewAnswerComposer(env.manager, 16, time.Minute)
	env.qa = NewQAService(env.retrieval, env.composer, 4000)
	env.templates = NewTemplateService(memrepo.NewTemplateRepo(), env.store)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.ingest.Shutdown(ctx)
	})
	return env
}

var (
	adminSecret = access.Subject{UserID: "admin", Username: "admin", Role: access.RoleAdmin, MaxLevel: access.LevelSecret}
	adminConf   = access.Subject{UserID: "admin2", Username: "admin2", Role: access.RoleAdmin, MaxLevel: access.LevelConfidential}
	analystConf = access.Subject{UserID: "analyst", Username: "analyst", Role: access.RoleAnalyst, MaxLevel: access.LevelConfidential}
	userPublic  = access.Subject{UserID: "user", Username: "user", Role: access.RoleUser, MaxLevel: access.LevelPublic}
)

const leaseText = "Lease Agreement between Acme and Bob.\n\nThe tenant shall pay rent of 500 dollars every month.\f" +
	"Termination requires ninety days written notice by either party.\f" +
	"The deposit is returned within thirty days after the lease ends."

// ingestReady uploads a text file and waits for the job to finish.
func ingestReady(t *testing.T, env *testEnv, filename, content, classification string) *model.IngestJob {
	t.Helper()
	ctx := context.Background()
	job, err := env.ingest.Submit(ctx, adminSecret, UploadInput{Filename: filename, Data: []byte(content), Classification: classification})
	require.NoError(t, err)
	done, err := env.ingest.Wait(ctx, job.ID, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, model.IngestReady, done.State, "error: %s %s", done.ErrorKind, done.ErrorMessage)
	return done
}
