package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xxxsen/docvault/internal/config"
)

// Store keeps opaque blobs: uploaded originals, extracted page texts,
// templates and generated files. Open and Exists report a missing key
// with errors.ErrNotFound and false respectively.
type Store interface {
	Type() string
	Save(ctx context.Context, key string, r io.ReadSeeker, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.FileStoreConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("file_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported file store type: %s", cfg.Type)
	}
	return factory(cfg.Data)
}

// ReadAll opens key and returns its full content.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func validKey(key string) bool {
	return key != "" && !strings.Contains(key, "/") && !strings.Contains(key, "\\") && !strings.Contains(key, "..")
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode store config: %w", err)
	}
	return nil
}
