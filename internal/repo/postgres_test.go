package repo

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/config"
	"github.com/xxxsen/docvault/internal/db"
	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     os.Getenv("TEST_DB_USER"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		DBName:   os.Getenv("TEST_DB_NAME"),
	})
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(conn))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPostgresDocumentRepo_FilteredCandidates(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	docs := NewDocumentRepo(conn)
	chunks := NewChunkRepo(conn)
	suffix := strconv.FormatInt(time.Now().UnixNano(), 10)

	pub := &model.Document{ID: "pub-" + suffix, Filename: "pub-" + suffix + ".txt", Classification: access.LevelPublic, UploadDate: 1, Mtime: 1, Language: "english"}
	sec := &model.Document{ID: "sec-" + suffix, Filename: "sec-" + suffix + ".txt", Classification: access.LevelSecret, UploadDate: 2, Mtime: 2}
	require.NoError(t, docs.CreateWithChunks(ctx, pub, []model.Chunk{
		{ID: "pc-" + suffix, DocumentID: pub.ID, Seq: 0, Page: 1, Start: 0, End: 4, Text: "rent", Embedding: []float32{1, 0, 0}},
	}))
	require.NoError(t, docs.CreateWithChunks(ctx, sec, []model.Chunk{
		{ID: "sc-" + suffix, DocumentID: sec.ID, Seq: 0, Page: 1, Start: 0, End: 4, Text: "rent", Embedding: []float32{1, 0, 0}},
	}))
	t.Cleanup(func() {
		_ = docs.Delete(ctx, pub.ID)
		_ = docs.Delete(ctx, sec.ID)
	})

	err := docs.CreateWithChunks(ctx, &model.Document{ID: "dup-" + suffix, Filename: pub.Filename, Classification: access.LevelPublic}, nil)
	require.ErrorIs(t, err, appErr.ErrConflict)

	cands, err := chunks.Candidates(ctx, CandidateQuery{
		Levels:   access.AccessibleLevels(access.LevelInternal),
		Filename: sec.Filename,
	})
	require.NoError(t, err)
	require.Empty(t, cands)

	cands, err = chunks.Candidates(ctx, CandidateQuery{
		Levels:   access.AccessibleLevels(access.LevelSecret),
		Filename: pub.Filename,
		Vector:   []float32{1, 0, 0},
		Limit:    5,
	})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, []float32{1, 0, 0}, cands[0].Embedding)

	cands, err = chunks.Candidates(ctx, CandidateQuery{
		Levels:   access.AccessibleLevels(access.LevelSecret),
		Filename: pub.Filename,
		Pages:    []int{2, 3},
	})
	require.NoError(t, err)
	require.Empty(t, cands)

	got, err := docs.Get(ctx, pub.ID)
	require.NoError(t, err)
	require.Equal(t, pub.Language, got.Language)

	require.NoError(t, docs.Delete(ctx, pub.ID))
	left, err := docs.ListChunks(ctx, pub.ID, 0)
	require.NoError(t, err)
	require.Empty(t, left)
}
