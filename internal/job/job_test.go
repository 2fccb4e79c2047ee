package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docvault/internal/model"
	"github.com/xxxsen/docvault/internal/repo/memrepo"
)

func TestIngestCleanupJob_KeepsActiveJobs(t *testing.T) {
	ctx := context.Background()
	jobs := memrepo.NewIngestJobRepo()
	now := time.Unix(1_800_000_000, 0)
	old := now.Add(-48 * time.Hour).Unix()
	for _, j := range []model.IngestJob{
		{ID: "done", State: model.IngestReady, Ctime: old, Mtime: old},
		{ID: "failed", State: model.IngestFailed, Ctime: old, Mtime: old},
		{ID: "stuck", State: model.IngestIndexing, Ctime: old, Mtime: old},
		{ID: "fresh", State: model.IngestReady, Ctime: now.Unix(), Mtime: now.Unix()},
	} {
		require.NoError(t, jobs.Create(ctx, &j))
	}
	cleanup := NewIngestCleanupJob(jobs, 24*time.Hour)
	cleanup.now = func() time.Time { return now }
	require.Equal(t, "ingest_cleanup", cleanup.Name())
	require.NoError(t, cleanup.Run(ctx))

	for id, kept := range map[string]bool{"done": false, "failed": false, "stuck": true, "fresh": true} {
		_, err := jobs.Get(ctx, id)
		if kept {
			require.NoError(t, err, id)
		} else {
			require.Error(t, err, id)
		}
	}
}

func TestEmbeddingCacheCleanupJob_DefaultAge(t *testing.T) {
	ctx := context.Background()
	cache := memrepo.NewEmbeddingCacheRepo()
	now := time.Unix(1_800_000_000, 0)
	require.NoError(t, cache.Save(ctx, &model.EmbeddingCache{ModelName: "m", TaskType: "doc", ContentHash: "old", Embedding: []float32{1}, Ctime: now.Add(-31 * 24 * time.Hour).Unix()}))
	require.NoError(t, cache.Save(ctx, &model.EmbeddingCache{ModelName: "m", TaskType: "doc", ContentHash: "new", Embedding: []float32{1}, Ctime: now.Add(-29 * 24 * time.Hour).Unix()}))

	cleanup := NewEmbeddingCacheCleanupJob(cache, 0)
	cleanup.now = func() time.Time { return now }
	require.NoError(t, cleanup.Run(ctx))

	_, ok, err := cache.Get(ctx, "m", "doc", "old")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = cache.Get(ctx, "m", "doc", "new")
	require.NoError(t, err)
	require.True(t, ok)
}
