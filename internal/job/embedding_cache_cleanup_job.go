package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/repo"
)

type EmbeddingCacheCleanupJob struct {
	repo       repo.EmbeddingCacheRepository
	maxAgeDays int
	now        func() time.Time
}

func NewEmbeddingCacheCleanupJob(repo repo.EmbeddingCacheRepository, maxAgeDays int) *EmbeddingCacheCleanupJob {
	return &EmbeddingCacheCleanupJob{repo: repo, maxAgeDays: maxAgeDays, now: time.Now}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	if j.repo == nil {
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	cutoff := j.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
	n, err := j.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Debug("embedding cache cleaned", zap.Int64("removed", n))
	return nil
}
