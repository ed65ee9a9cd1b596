// Package bucket stores snapshot bodies in any gocloud.dev blob bucket
// (mem://, file://, gs://, s3://).
package bucket

import (
	"context"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/gcsblob"  // gs:// buckets
	_ "gocloud.dev/blob/memblob"  // mem:// buckets
	_ "gocloud.dev/blob/s3blob"   // s3:// buckets
)

// BlobStore writes objects to an opened bucket.
type BlobStore struct {
	bucket *blob.Bucket
	url    string
}

// Open opens the bucket at url.
func Open(ctx context.Context, url string) (*BlobStore, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("bucket url is required")
	}
	bkt, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	return &BlobStore{bucket: bkt, url: url}, nil
}

// New wraps an already opened bucket.
func New(bkt *blob.Bucket, url string) (*BlobStore, error) {
	if bkt == nil {
		return nil, fmt.Errorf("bucket is required")
	}
	return &BlobStore{bucket: bkt, url: url}, nil
}

// PutObject writes data under key and returns "<bucket url>/<key>" with the
// query string of the bucket url dropped.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	var opts *blob.WriterOptions
	if contentType != "" {
		opts = &blob.WriterOptions{ContentType: contentType}
	}
	if err := s.bucket.WriteAll(ctx, path, data, opts); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	base, _, _ := strings.Cut(s.url, "?")
	return strings.TrimSuffix(base, "/") + "/" + path, nil
}

// Close releases the bucket.
func (s *BlobStore) Close() error {
	if err := s.bucket.Close(); err != nil {
		return fmt.Errorf("close bucket: %w", err)
	}
	return nil
}
