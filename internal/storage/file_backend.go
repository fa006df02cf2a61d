package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileBackend keeps each document in <baseDir>/<key>.json.
type FileBackend struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileBackend creates a new file-based storage backend
func NewFileBackend(baseDir string) *FileBackend {
	if baseDir == "" {
		baseDir = "."
	}
	return &FileBackend{baseDir: baseDir}
}

func (f *FileBackend) Name() string { return "file" }

func (f *FileBackend) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", f.baseDir, err)
	}
	return nil
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) Health(ctx context.Context) error {
	_, err := os.Stat(f.baseDir)
	return err
}

// Path returns the file used for key.
func (f *FileBackend) Path(key string) string {
	name := strings.TrimSuffix(filepath.Base(key), ".json")
	return filepath.Join(f.baseDir, name+".json")
}

func (f *FileBackend) GetDocument(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ErrNotFound{Key: key}
		}
		return nil, err
	}
	return data, nil
}

// PutDocument writes through a temp file and rename so readers never see a partial file.
func (f *FileBackend) PutDocument(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := f.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func (f *FileBackend) DeleteDocument(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.Path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
