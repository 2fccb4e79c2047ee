package service

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docvault/internal/access"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

func TestReclassify(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	job := ingestReady(t, env, "lease.txt", leaseText, "PUBLIC")
	id := job.DocumentID

	_, err := env.documents.Reclassify(ctx, analystConf, id, "SECRET", false)
	require.ErrorIs(t, err, appErr.ErrForbidden)
	_, err = env.documents.Reclassify(ctx, adminConf, id, "SECRET", false)
	require.ErrorIs(t, err, appErr.ErrForbidden)
	_, err = env.documents.Reclassify(ctx, adminSecret, id, "BOGUS", false)
	require.ErrorIs(t, err, appErr.ErrInvalid)

	doc, err := env.documents.Reclassify(ctx, adminSecret, id, "secret", false)
	require.NoError(t, err)
	require.Equal(t, access.LevelSecret, doc.Classification)

	_, err = env.documents.Get(ctx, userPublic, id)
	require.ErrorIs(t, err, appErr.ErrForbidden)
	got, err := env.qa.Ask(ctx, userPublic, AskInput{Question: "termination notice"})
	require.NoError(t, err)
	require.Equal(t, InsufficientInformationAnswer, got.Answer)

	_, err = env.documents.Reclassify(ctx, adminSecret, id, "INTERNAL", false)
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = env.documents.Reclassify(ctx, adminConf, id, "INTERNAL", true)
	require.ErrorIs(t, err, appErr.ErrForbidden)
	doc, err = env.documents.Reclassify(ctx, adminSecret, id, "INTERNAL", true)
	require.NoError(t, err)
	require.Equal(t, access.LevelInternal, doc.Classification)
}

func TestPageContent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	ingestReady(t, env, "lease.txt", leaseText, "CONFIDENTIAL")

	page, err := env.documents.PageContent(ctx, analystConf, "lease.txt", 2)
	require.NoError(t, err)
	require.Equal(t, 3, page.TotalPages)
	require.Equal(t, "Termination requires ninety days written notice by either party.", page.Content)
	require.NotEmpty(t, page.Chunks)
	for _, c := range page.Chunks {
		require.Equal(t, 2, c.Page)
	}

	_, err = env.documents.PageContent(ctx, analystConf, "lease.txt", 4)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = env.documents.PageContent(ctx, userPublic, "lease.txt", 1)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = env.documents.PageContent(ctx, analystConf, "lease.txt", 0)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestOpenOriginal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	job := ingestReady(t, env, "lease.txt", leaseText, "INTERNAL")

	orig, err := env.documents.OpenOriginal(ctx, analystConf, job.DocumentID)
	require.NoError(t, err)
	defer orig.Body.Close()
	raw, err := io.ReadAll(orig.Body)
	require.NoError(t, err)
	require.Equal(t, leaseText, string(raw))
	require.Equal(t, "text/plain; charset=utf-8", orig.ContentType)

	_, err = env.documents.OpenOriginal(ctx, userPublic, job.DocumentID)
	require.ErrorIs(t, err, appErr.ErrForbidden)
}
