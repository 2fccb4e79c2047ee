package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_JSONDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{"port": 8080, "jwt_secret": "s", "database": {"driver": "memory"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.JWTTTLHours)
	require.Equal(t, "local", cfg.FileStore.Type)
	require.Equal(t, "hash", cfg.AI.EmbedProvider)
	require.Equal(t, 1500, cfg.Ingest.ChunkSize)
	require.Equal(t, 300, cfg.Ingest.ChunkOverlap)
	require.Equal(t, 100, cfg.Ingest.MinChunkSize)
	require.Equal(t, 15, cfg.Retrieval.DefaultTopK)
	require.Equal(t, 50, cfg.Retrieval.MaxTopK)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
port: 9000
jwt_secret: abc
database:
  driver: postgres
  host: localhost
  port: 5432
file_store:
  type: local
  data:
    dir: /tmp/docvault
ingest:
  chunk_size: 800
  chunk_overlap: 100
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, "localhost", cfg.Database.Host)
	require.Equal(t, 800, cfg.Ingest.ChunkSize)
	data, ok := cfg.FileStore.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "/tmp/docvault", data["dir"])
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOCVAULT_JWT_SECRET", "from-env")
	t.Setenv("DOCVAULT_AI_API_KEY", "key")
	path := writeFile(t, "config.json", `{"port": 1, "jwt_secret": "file", "database": {"driver": "memory"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.JWTSecret)
	data, ok := cfg.AI.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "key", data["api_key"])
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeFile(t, "a.json", `{"port": 1}`))
	require.Error(t, err)
	_, err = Load(writeFile(t, "b.json", `{"port": 1, "jwt_secret": "s"}`))
	require.Error(t, err)
	_, err = Load(writeFile(t, "c.json", `{"port": 1, "jwt_secret": "s", "database": {"driver": "memory"}, "ingest": {"chunk_size": 100, "chunk_overlap": 100}}`))
	require.Error(t, err)
}
