package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound indicates a missing blob.
var ErrNotFound = errors.New("blob not found")

// BlobStore reads and writes avatar blobs by key.
type BlobStore interface {
	// Put stores the blob under key, overwriting any existing one.
	Put(ctx context.Context, key, contentType string, content io.Reader) error
	// Get returns the blob content and its content type. The caller closes
	// the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a backend.
type Config struct {
	// Type is "filesystem" or "s3".
	Type string

	// Filesystem config
	FilesystemRoot string

	// S3 config
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	// S3UsePathStyle is required for MinIO-style endpoints.
	S3UsePathStyle bool
}

// New builds the backend the config selects.
func New(ctx context.Context, cfg Config) (BlobStore, error) {
	switch cfg.Type {
	case "", "filesystem":
		return NewFileSystemStore(cfg.FilesystemRoot)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, errors.New("unknown storage type: " + cfg.Type)
	}
}
