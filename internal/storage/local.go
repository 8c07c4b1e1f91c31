package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalAssetStore writes uploads to a directory on disk and serves them
// from a static base URL.
type LocalAssetStore struct {
	dir     string
	baseURL string
}

// NewLocalAssetStore builds the store and ensures the directory exists.
func NewLocalAssetStore(dir, baseURL string) (*LocalAssetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	return &LocalAssetStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save streams the upload to disk under a generated object name.
func (s *LocalAssetStore) Save(_ context.Context, upload Upload) (string, error) {
	ext := filepath.Ext(upload.FileName)
	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("storage: create file: %w", err)
	}
	if _, err := io.Copy(f, upload.Reader); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("storage: close file: %w", err)
	}
	return s.baseURL + "/" + name, nil
}

// Remove deletes the object referenced by a previously returned URL.
func (s *LocalAssetStore) Remove(_ context.Context, url string) error {
	name := filepath.Base(url)
	if name == "." || name == "/" || name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}
