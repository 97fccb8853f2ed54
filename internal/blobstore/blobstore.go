// Package blobstore wraps MinIO/S3 interactions for the moderation pipeline:
// downloading uploaded images for classification and deleting rejected ones.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tidemarket/moderation/internal/config"
)

// ErrNotFound is returned when the referenced object does not exist.
var ErrNotFound = errors.New("blob not found")

// ErrForeignURL is returned for image URLs that do not point into the
// configured bucket; such objects can be downloaded but never deleted.
var ErrForeignURL = errors.New("image url outside managed bucket")

// Store is the blob-storage contract the pipeline and the cleanup sweep
// consume. Download fetches raw image bytes; Remove is idempotent, deleting
// an already-missing object is not an error.
type Store interface {
	Download(ctx context.Context, imageURL string) ([]byte, error)
	Remove(ctx context.Context, imageURL string) error
}

// MinioStore implements Store against a MinIO/S3 endpoint.
type MinioStore struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.ImageBucket, region: cfg.S3Region}, nil
}

// EnsureBucket makes sure the image bucket exists before use.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
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

// Download fetches the raw image bytes behind imageURL.
func (s *MinioStore) Download(ctx context.Context, imageURL string) ([]byte, error) {
	key, err := s.objectKey(imageURL)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return buf, nil
}

// Remove deletes the object behind imageURL. Missing objects are treated as
// already-deleted.
func (s *MinioStore) Remove(ctx context.Context, imageURL string) error {
	key, err := s.objectKey(imageURL)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// objectKey maps a stored image URL onto a bucket-relative key. Records carry
// full public URLs of the form http(s)://host/<bucket>/<key>.
func (s *MinioStore) objectKey(imageURL string) (string, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("parse image url: %w", err)
	}
	path := strings.TrimPrefix(u.Path, "/")
	if rest, ok := strings.CutPrefix(path, s.bucket+"/"); ok {
		return rest, nil
	}
	return "", fmt.Errorf("%w: %s", ErrForeignURL, imageURL)
}
