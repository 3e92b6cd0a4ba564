package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"chat-relay/internal/config"
)

// MinioStorage implements Storage for MinIO.
type MinioStorage struct {
	client *minio.Client
	public *minio.Client
	bucket string
	log    zerolog.Logger
}

// NewMinioStorage connects to MinIO and ensures the bucket exists.
func NewMinioStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*MinioStorage, error) {
	logger := log.With().Str("component", "minio-storage").Logger()

	client, err := newMinioClient(cfg.StorageEndpoint, cfg)
	if err != nil {
		return nil, err
	}
	public := client
	if cfg.StoragePublicEndpoint != "" {
		if public, err = newMinioClient(cfg.StoragePublicEndpoint, cfg); err != nil {
			return nil, err
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, cfg.StorageBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(checkCtx, cfg.StorageBucket, minio.MakeBucketOptions{Region: cfg.StorageRegion}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		logger.Info().Str("bucket", cfg.StorageBucket).Msg("bucket created")
	}
	return &MinioStorage{client: client, public: public, bucket: cfg.StorageBucket, log: logger}, nil
}

// newMinioClient accepts either host:port or a URL; a URL scheme overrides STORAGE_USE_SSL.
func newMinioClient(endpoint string, cfg *config.Config) (*minio.Client, error) {
	host, secure := endpoint, cfg.StorageUseSSL
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse storage endpoint: %w", err)
		}
		host, secure = parsed.Host, parsed.Scheme == "https"
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		Secure: secure,
		Region: cfg.StorageRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return client, nil
}

func (m *MinioStorage) Bucket() string { return m.bucket }

func (m *MinioStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (m *MinioStorage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, fmt.Errorf("stat object: %w", err)
	}
	return ObjectInfo{Size: info.Size, ContentType: info.ContentType, ETag: info.ETag}, nil
}

func (m *MinioStorage) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (m *MinioStorage) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := m.public.PresignedGetObject(ctx, m.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}

// PresignPut signs a plain PUT; minio-go does not bind the content type into the signature.
func (m *MinioStorage) PresignPut(ctx context.Context, key, _ string, expiry time.Duration) (string, error) {
	u, err := m.public.PresignedPutObject(ctx, m.bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}
	return u.String(), nil
}

func (m *MinioStorage) Health(ctx context.Context) error {
	if _, err := m.client.BucketExists(ctx, m.bucket); err != nil {
		return fmt.Errorf("minio health: %w", err)
	}
	return nil
}
