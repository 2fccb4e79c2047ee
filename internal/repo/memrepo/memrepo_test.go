package memrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
	"github.com/xxxsen/docvault/internal/repo"
)

func TestDocumentRepo_CreateListDelete(t *testing.T) {
	ctx := context.Background()
	docs := NewDocumentRepo()
	chunks := NewChunkRepo(docs)

	pub := &model.Document{ID: "d1", Filename: "a.pdf", Classification: access.LevelPublic, UploadDate: 1}
	sec := &model.Document{ID: "d2", Filename: "b.pdf", Classification: access.LevelSecret, UploadDate: 2}
	require.NoError(t, docs.CreateWithChunks(ctx, pub, []model.Chunk{{ID: "c1", DocumentID: "d1", Page: 1, Text: "x"}}))
	require.NoError(t, docs.CreateWithChunks(ctx, sec, []model.Chunk{{ID: "c2", DocumentID: "d2", Page: 1, Text: "y"}}))

	err := docs.CreateWithChunks(ctx, &model.Document{ID: "d3", Filename: "a.pdf"}, nil)
	require.ErrorIs(t, err, appErr.ErrConflict)

	list, err := docs.List(ctx, access.AccessibleLevels(access.LevelPublic))
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "d1", list[0].ID)

	list, err = docs.List(ctx, access.AccessibleLevels(access.LevelSecret))
	require.NoError(t, err)
	require.Equal(t, []string{"d2", "d1"}, []string{list[0].ID, list[1].ID})

	cands, err := chunks.Candidates(ctx, repo.CandidateQuery{Levels: access.AccessibleLevels(access.LevelInternal)})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "a.pdf", cands[0].Filename)

	require.NoError(t, docs.Delete(ctx, "d1"))
	left, err := docs.ListChunks(ctx, "d1", 0)
	require.NoError(t, err)
	require.Empty(t, left)
	_, err = docs.Get(ctx, "d1")
	require.True(t, appErr.IsNotFound(err))
}

func TestIngestJobRepo_DeleteFinishedBefore(t *testing.T) {
	ctx := context.Background()
	jobs := NewIngestJobRepo()
	require.NoError(t, jobs.Create(ctx, &model.IngestJob{ID: "j1", State: model.IngestReady, Mtime: 10}))
	require.NoError(t, jobs.Create(ctx, &model.IngestJob{ID: "j2", State: model.IngestExtracting, Mtime: 10}))
	require.NoError(t, jobs.Create(ctx, &model.IngestJob{ID: "j3", State: model.IngestFailed, Mtime: 100}))

	n, err := jobs.DeleteFinishedBefore(ctx, 50)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	_, err = jobs.Get(ctx, "j2")
	require.NoError(t, err)
}
