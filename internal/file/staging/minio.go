package staging

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

// MinioStore stages uploads in an object-storage bucket instead of the
// local disk, for deployments where the API server and the pinning
// processor do not share a filesystem.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore ensures the bucket exists and returns the store.
func NewMinioStore(ctx context.Context, client *minio.Client, bucket string) (*MinioStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("staging bucket is required")
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check staging bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create staging bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// Save streams the upload into the bucket and returns the stored size.
func (s *MinioStore) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return 0, fmt.Errorf("stage object: %w", err)
	}
	return info.Size, nil
}

// Open returns the staged object. Stat is called up front so a missing
// object fails here rather than on first read.
func (s *MinioStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get staged object: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("stat staged object: %w", err)
	}
	return obj, nil
}

// Remove deletes the staged object.
func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove staged object: %w", err)
	}
	return nil
}
