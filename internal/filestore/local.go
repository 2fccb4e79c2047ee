package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

type localConfig struct {
	Dir string `json:"dir"`
}

type localStore struct {
	dir string
}

func init() {
	Register("local", createLocalStore)
}

func createLocalStore(args interface{}) (Store, error) {
	config := &localConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	return NewLocal(config.Dir), nil
}

func NewLocal(dir string) Store {
	return &localStore{dir: dir}
}

func (s *localStore) Type() string {
	return "local"
}

// Save writes to a temp file first and renames it into place, so a reader
// never observes a partial blob.
func (s *localStore) Save(ctx context.Context, key string, r io.ReadSeeker, size int64) error {
	_ = ctx
	_ = size
	if !validKey(key) {
		return fmt.Errorf("invalid file key")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, key))
}

func (s *localStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctx
	if !validKey(key) {
		return nil, fmt.Errorf("invalid file key")
	}
	f, err := os.Open(filepath.Join(s.dir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErr.NotFound("file not found")
		}
		return nil, err
	}
	return f, nil
}

func (s *localStore) Exists(ctx context.Context, key string) (bool, error) {
	_ = ctx
	if !validKey(key) {
		return false, nil
	}
	_, err := os.Stat(filepath.Join(s.dir, key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	if !validKey(key) {
		return fmt.Errorf("invalid file key")
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
