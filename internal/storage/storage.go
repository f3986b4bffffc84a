// Package storage provides the object stores datasets are read from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
)

// ObjectStore abstracts the object storage holding dataset scripts.
// Implementations include S3 and the local filesystem.
type ObjectStore interface {
	// Open streams an object. The caller closes the reader.
	// Missing objects yield ErrObjectNotFound.
	Open(ctx context.Context, objectPath string) (io.ReadCloser, error)

	// Put stores the content of r under objectPath, replacing any
	// existing object.
	Put(ctx context.Context, objectPath string, r io.Reader) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// List returns all object paths under the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config selects and configures an object store.
type Config struct {
	// Type is "local" or "s3".
	Type string
	// Path is the base directory of a local store.
	Path string
	// Bucket is the S3 bucket.
	Bucket string
	S3     S3Config
}

// New creates the object store described by cfg.
func New(ctx context.Context, cfg Config) (ObjectStore, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStore(cfg.Path)
	case "s3":
		return NewS3Store(ctx, cfg.Bucket, cfg.S3)
	default:
		return nil, fmt.Errorf("storage: unsupported type %q", cfg.Type)
	}
}
