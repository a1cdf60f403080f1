package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig carries the settings needed to reach an S3-compatible endpoint.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	URLExpiry time.Duration
}

// MinIO stores document images in an S3-compatible bucket and resolves
// locations to presigned GET URLs.
type MinIO struct {
	client    *minio.Client
	bucket    string
	region    string
	urlExpiry time.Duration
}

// NewMinIO creates a MinIO-backed store.
func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &MinIO{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		urlExpiry: cfg.URLExpiry,
	}, nil
}

// EnsureBucket makes sure the documents bucket exists before use.
func (s *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Put uploads the object and returns its object key as the location.
func (s *MinIO) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", fmt.Errorf("upload object %s: %w", path, err)
	}
	return path, nil
}

// Resolve returns a presigned GET URL for a stored object.
func (s *MinIO) Resolve(ctx context.Context, location string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, location, s.urlExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", location, err)
	}
	return u.String(), nil
}
