// Package storage keeps uploaded files in an S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/apperr"
)

const (
	service          = "object store"
	defaultBucket    = "uploads"
	defaultURLExpiry = time.Hour
	maxURLExpiry     = 7 * 24 * time.Hour
)

// Config describes the object store connection.
type Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access-key"`
	SecretKey string `mapstructure:"secret-key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Secure    bool   `mapstructure:"secure"`
}

// objectAPI is the subset of *minio.Client the store uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// Store uploads and serves objects from a single bucket.
type Store struct {
	api    objectAPI
	bucket string
	region string
	logger *zap.Logger
}

// New connects to the object store. The connection is lazy; call
// EnsureBucket to verify it.
func New(cfg Config, log *zap.Logger) (*Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("object store endpoint is required")
	}
	// minio expects host:port without a scheme.
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
		cfg.Secure = true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = strings.TrimPrefix(endpoint, "http://")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return newStore(client, cfg, log), nil
}

func newStore(api objectAPI, cfg Config, log *zap.Logger) *Store {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = defaultBucket
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{api: api, bucket: bucket, region: cfg.Region, logger: log}
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

// BucketExists reports whether the bucket is present.
func (s *Store) BucketExists(ctx context.Context) (bool, error) {
	ok, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return false, apperr.UpstreamUnavailable(service, err)
	}
	return ok, nil
}

// EnsureBucket creates the bucket when it is missing.
func (s *Store) EnsureBucket(ctx context.Context) error {
	ok, err := s.BucketExists(ctx)
	if err != nil {
		return err
	}
	if ok {
		s.logger.Info("object store bucket exists", zap.String("bucket", s.bucket))
		return nil
	}

	if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return apperr.UpstreamUnavailable(service, err)
	}
	s.logger.Info("object store bucket created", zap.String("bucket", s.bucket))
	return nil
}

// Upload stores size bytes from r under key.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if strings.TrimSpace(key) == "" {
		return apperr.Validation("object key is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.api.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return apperr.UpstreamUnavailable(service, err)
	}

	s.logger.Debug("object uploaded",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int64("size", info.Size),
	)
	return nil
}

// PresignedURL returns a time-limited download URL for key.
func (s *Store) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultURLExpiry
	}
	if ttl > maxURLExpiry {
		ttl = maxURLExpiry
	}

	u, err := s.api.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", apperr.UpstreamUnavailable(service, err)
	}
	return u.String(), nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.api.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperr.UpstreamUnavailable(service, err)
	}
	return nil
}
