package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"chat-relay/internal/config"
)

var (
	// ErrStorageDisabled is returned by every call when no bucket is configured.
	ErrStorageDisabled = errors.New("object storage is not configured; set STORAGE_* to enable file uploads")
	// ErrObjectNotFound is returned by Stat for a missing key.
	ErrObjectNotFound = errors.New("object not found")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Size        int64
	ContentType string
	ETag        string
}

// Storage is the object store behind file attachments.
type Storage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	Health(ctx context.Context) error
	Bucket() string
}

// New builds the backend selected by STORAGE_BACKEND. Incomplete settings give a
// disabled store rather than an error so the relay can run without uploads.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Storage, error) {
	if !cfg.StorageConfigured() {
		log.Warn().Str("backend", cfg.StorageBackend).Msg("object storage not configured; file uploads disabled")
		return Disabled{}, nil
	}
	switch cfg.StorageBackend {
	case config.StorageBackendMinio:
		return NewMinioStorage(ctx, cfg, log)
	default:
		return NewS3Storage(ctx, cfg, log)
	}
}

// Disabled rejects every operation with ErrStorageDisabled.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, io.Reader, int64, string) error {
	return ErrStorageDisabled
}

func (Disabled) Stat(context.Context, string) (ObjectInfo, error) {
	return ObjectInfo{}, ErrStorageDisabled
}

func (Disabled) Delete(context.Context, string) error { return ErrStorageDisabled }

func (Disabled) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", ErrStorageDisabled
}

func (Disabled) PresignPut(context.Context, string, string, time.Duration) (string, error) {
	return "", ErrStorageDisabled
}

// Health reports nil so readiness does not depend on an optional feature.
func (Disabled) Health(context.Context) error { return nil }

func (Disabled) Bucket() string { return "" }
