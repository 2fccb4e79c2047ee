package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/ai"
	"github.com/xxxsen/docvault/internal/model"
	"github.com/xxxsen/docvault/internal/repo"
)

// WrapDBCacheToEmbedder persists embeddings so that re-ingesting or
// reindexing the same text does not call the provider again. Cache read
// or write failures degrade to a direct provider call.
func WrapDBCacheToEmbedder(e ai.IEmbedder, cacheRepo repo.EmbeddingCacheRepository) ai.IEmbedder {
	if e == nil || cacheRepo == nil {
		return e
	}
	return &dbEmbedder{next: e, repo: cacheRepo}
}

type dbEmbedder struct {
	next ai.IEmbedder
	repo repo.EmbeddingCacheRepository
}

func (d *dbEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := buildCacheKey(d.next.ModelName(), taskType, text)
	values, ok, err := d.repo.Get(ctx, key.model, taskType, key.contentHash)
	if err != nil {
		logutil.GetLogger(ctx).Warn("read embedding cache failed", zap.Error(err))
	} else if ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)", zap.String("task_type", taskType))
		return values, nil
	}
	res, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := d.repo.Save(ctx, &model.EmbeddingCache{
		ModelName:   key.model,
		TaskType:    taskType,
		ContentHash: key.contentHash,
		Embedding:   res,
		Ctime:       time.Now().Unix(),
	}); err != nil {
		logutil.GetLogger(ctx).Warn("write embedding cache failed", zap.Error(err))
	}
	return res, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

type cacheKey struct {
	full        string
	contentHash string
	model       string
}

func buildCacheKey(modelName, taskType, text string) cacheKey {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return cacheKey{
		full:        "embed:" + modelName + ":" + taskType + ":" + contentHash,
		contentHash: contentHash,
		model:       modelName,
	}
}
