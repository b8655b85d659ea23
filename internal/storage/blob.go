package storage

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
)

// BlobStore is a Store over a gocloud.dev bucket.
type BlobStore struct {
	bucket *blob.Bucket
	scheme string
	name   string
	prefix string
}

// NewBlobStore wraps an already-open bucket. URIs are rendered as
// scheme://name/prefix+key.
func NewBlobStore(bucket *blob.Bucket, scheme, name, prefix string) *BlobStore {
	return &BlobStore{
		bucket: bucket,
		scheme: scheme,
		name:   name,
		prefix: prefix,
	}
}

func (s *BlobStore) path(key string) string {
	return s.prefix + key
}

// Write writes data to the bucket.
func (s *BlobStore) Write(ctx context.Context, key string, data []byte) error {
	path := s.path(key)

	w, err := s.bucket.NewWriter(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", path, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", path, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", path, err)
	}

	return nil
}

// Exists checks if an object exists.
func (s *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	path := s.path(key)
	ok, err := s.bucket.Exists(ctx, path)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", path, err)
	}
	return ok, nil
}

// URI returns the canonical URI for the given key.
func (s *BlobStore) URI(key string) string {
	return fmt.Sprintf("%s://%s/%s", s.scheme, s.name, s.path(key))
}

// Close releases the bucket connection.
func (s *BlobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

var _ Store = (*BlobStore)(nil)
