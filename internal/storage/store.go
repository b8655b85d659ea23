// Package storage writes batch artifacts to object storage and checks for
// existing export outputs.
package storage

import (
	"context"
	"fmt"
)

// Store abstracts a bucket (or local directory) addressed by key.
type Store interface {
	// Write stores data under key, replacing any existing object.
	Write(ctx context.Context, key string, data []byte) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// Config configures the storage backend.
type Config struct {
	Backend string // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string

	// GCS or S3 bucket name
	Bucket string

	// S3 (also works for B2, R2, MinIO)
	S3Endpoint string // custom endpoint for B2/MinIO/R2
	S3Region   string

	// Common
	Prefix string // path prefix within bucket or local dir
}

// New creates a storage backend based on configuration.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for gcs backend")
		}
		return NewGCSStore(cfg.Bucket, cfg.Prefix)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for s3 backend")
		}
		return NewS3Store(cfg.Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// ForOutput opens the export destination bucket named in a ledger output
// location. scheme is the URI scheme recorded in the ledger ("s3", "gs" or
// "file"); S3 endpoint settings are taken from cfg. Keys are not prefixed.
func ForOutput(scheme, bucket string, cfg Config) (Store, error) {
	switch scheme {
	case "s3":
		return NewS3Store(bucket, "", cfg.S3Endpoint, cfg.S3Region)
	case "gs":
		return NewGCSStore(bucket, "")
	case "file":
		return NewLocalStore(bucket, "")
	default:
		return nil, fmt.Errorf("unsupported output scheme: %s", scheme)
	}
}
