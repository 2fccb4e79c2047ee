package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/ai"
	"github.com/xxxsen/docvault/internal/config"
	"github.com/xxxsen/docvault/internal/db"
	"github.com/xxxsen/docvault/internal/embedcache"
	"github.com/xxxsen/docvault/internal/filestore"
	"github.com/xxxsen/docvault/internal/index"
	"github.com/xxxsen/docvault/internal/ocr"
	"github.com/xxxsen/docvault/internal/repo"
	"github.com/xxxsen/docvault/internal/repo/memrepo"
	"github.com/xxxsen/docvault/internal/service"
)

type repositories struct {
	users      repo.UserRepository
	documents  repo.DocumentRepository
	chunks     repo.ChunkRepository
	templates  repo.TemplateRepository
	jobs       repo.IngestJobRepository
	embedCache repo.EmbeddingCacheRepository
}

type app struct {
	cfg      *config.Config
	db       *sql.DB
	repos    repositories
	store    filestore.Store
	auth     *service.AuthService
	users    *service.UserService
	docs     *service.DocumentService
	ingest   *service.IngestService
	qa       *service.QAService
	template *service.TemplateService
}

func openRepositories(cfg *config.Config) (repositories, *sql.DB, error) {
	if cfg.Database.Driver == "memory" {
		docs := memrepo.NewDocumentRepo()
		return repositories{
			users:      memrepo.NewUserRepo(),
			documents:  docs,
			chunks:     memrepo.NewChunkRepo(docs),
			templates:  memrepo.NewTemplateRepo(),
			jobs:       memrepo.NewIngestJobRepo(),
			embedCache: memrepo.NewEmbeddingCacheRepo(),
		}, nil, nil
	}
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return repositories{}, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return repositories{}, nil, fmt.Errorf("migrations: %w", err)
	}
	return repositories{
		users:      repo.NewUserRepo(conn),
		documents:  repo.NewDocumentRepo(conn),
		chunks:     repo.NewChunkRepo(conn),
		templates:  repo.NewTemplateRepo(conn),
		jobs:       repo.NewIngestJobRepo(conn),
		embedCache: repo.NewEmbeddingCacheRepo(conn),
	}, conn, nil
}

func buildGenerator(cfg config.AIConfig) (ai.IGenerator, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	entries := make([]ai.GeneratorEntry, 0, 1+len(cfg.Fallback))
	primary, err := ai.NewProvider(cfg.Provider, cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	entries = append(entries, ai.GeneratorEntry{Name: cfg.Provider, Generator: ai.NewGenerator(primary, cfg.Model)})
	for _, fb := range cfg.Fallback {
		p, err := ai.NewProvider(fb.Provider, fb.Data)
		if err != nil {
			logutil.GetLogger(context.Background()).Warn("skip fallback ai provider",
				zap.String("provider", fb.Provider), zap.Error(err))
			continue
		}
		entries = append(entries, ai.GeneratorEntry{Name: fb.Provider, Generator: ai.NewGenerator(p, fb.Model)})
	}
	return ai.NewGroupGenerator(entries), nil
}

// buildEmbedder layers an in-process LRU over the persistent cache so
// that repeated questions skip both the database and the provider.
func buildEmbedder(cfg config.AIConfig, cacheRepo repo.EmbeddingCacheRepository) (ai.IEmbedder, error) {
	provider, err := ai.NewProvider(cfg.EmbedProvider, cfg.EmbedData)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	embedder := ai.NewEmbedder(provider, cfg.EmbedModel)
	embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	return embedcache.WrapLruCacheToEmbedder(embedder, cfg.EmbedCacheSize, time.Duration(cfg.EmbedCacheTTLSeconds)*time.Second), nil
}

func newApp(cfg *config.Config) (*app, error) {
	repos, conn, err := openRepositories(cfg)
	if err != nil {
		return nil, err
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}
	generator, err := buildGenerator(cfg.AI)
	if err != nil {
		return nil, err
	}
	embedder, err := buildEmbedder(cfg.AI, repos.embedCache)
	if err != nil {
		return nil, err
	}
	manager := ai.NewManager(generator, embedder, ai.ManagerConfig{Timeout: cfg.AI.Timeout, MaxInputChars: cfg.AI.MaxInputChars})
	chunker := index.NewChunker(index.ChunkerConfig{
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		MinChunkSize: cfg.Ingest.MinChunkSize,
	})
	indexer := index.NewIndexer(chunker, embedder)

	a := &app{cfg: cfg, db: conn, repos: repos, store: store}
	a.auth = service.NewAuthService(repos.users, []byte(cfg.JWTSecret), time.Duration(cfg.JWTTTLHours)*time.Hour)
	a.users = service.NewUserService(repos.users)
	a.docs = service.NewDocumentService(repos.documents, store)
	a.ingest = service.NewIngestService(repos.documents, repos.jobs, store, ocr.NewRegistry(cfg.OCR), indexer, manager, service.IngestConfig{
		MaxUploadBytes: int64(cfg.Ingest.MaxUploadMB) << 20,
		ExtractTimeout: time.Duration(cfg.Ingest.ExtractTimeoutSeconds) * time.Second,
		PageTimeout:    time.Duration(cfg.OCR.PageTimeoutSeconds) * time.Second,
		Workers:        cfg.Ingest.Workers,
	})
	retrieval := service.NewRetrievalService(repos.chunks, manager, cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK)
	composer := service.NewAnswerComposer(manager, cfg.AI.AnswerCacheSize, time.Duration(cfg.AI.EmbedCacheTTLSeconds)*time.Second)
	a.qa = service.NewQAService(retrieval, composer, cfg.AI.MaxInputChars)
	a.template = service.NewTemplateService(repos.templates, store)
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.ingest.Shutdown(ctx); err != nil {
		logutil.GetLogger(ctx).Warn("ingest shutdown incomplete", zap.Error(err))
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
