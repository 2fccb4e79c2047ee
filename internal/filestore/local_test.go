package filestore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docvault/internal/config"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

func TestLocalStore_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	require.Equal(t, "local", store.Type())

	payload := []byte("hello contract")
	require.NoError(t, store.Save(ctx, "doc_1.txt", bytes.NewReader(payload), int64(len(payload))))
	ok, err := store.Exists(ctx, "doc_1.txt")
	require.NoError(t, err)
	require.True(t, ok)

	data, err := ReadAll(ctx, store, "doc_1.txt")
	require.NoError(t, err)
	require.Equal(t, payload, data)

	require.NoError(t, store.Delete(ctx, "doc_1.txt"))
	_, err = store.Open(ctx, "doc_1.txt")
	require.True(t, appErr.IsNotFound(err))
	require.NoError(t, store.Delete(ctx, "doc_1.txt"))
}

func TestLocalStore_RejectsPathKeys(t *testing.T) {
	store := NewLocal(t.TempDir())
	err := store.Save(context.Background(), "../escape", bytes.NewReader(nil), 0)
	require.Error(t, err)
	ok, err := store.Exists(context.Background(), "a/b")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
}
