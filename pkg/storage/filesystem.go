package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemStore keeps blobs as files under a root directory, with the
// content type in a sidecar file next to each blob.
type FileSystemStore struct {
	rootDir string
}

// NewFileSystemStore creates a filesystem-backed blob store.
func NewFileSystemStore(rootDir string) (*FileSystemStore, error) {
	if rootDir == "" {
		rootDir = "/tmp/warden-blobs"
	}
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FileSystemStore{rootDir: rootDir}, nil
}

// path maps a key to a file path, refusing keys that escape the root.
func (s *FileSystemStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.rootDir, clean), nil
}

// Put implements BlobStore.
func (s *FileSystemStore) Put(_ context.Context, key, contentType string, content io.Reader) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create blob file: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close blob file: %w", err)
	}

	if err := os.WriteFile(path+".contenttype", []byte(contentType), 0644); err != nil {
		return fmt.Errorf("failed to write content type: %w", err)
	}
	return nil
}

// Get implements BlobStore.
func (s *FileSystemStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, "", fmt.Errorf("blob %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open blob: %w", err)
	}

	contentType, err := os.ReadFile(path + ".contenttype")
	if err != nil && !os.IsNotExist(err) {
		f.Close()
		return nil, "", fmt.Errorf("failed to read content type: %w", err)
	}
	return f, string(contentType), nil
}

// Delete implements BlobStore.
func (s *FileSystemStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	if err := os.Remove(path + ".contenttype"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete content type: %w", err)
	}
	return nil
}
