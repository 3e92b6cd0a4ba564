package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"chat-relay/internal/infrastructure/metrics"
	"chat-relay/internal/infrastructure/storage"
	"chat-relay/internal/utils/idgen"
	"chat-relay/internal/utils/platformerrors"
)

const purgeBatchSize = 100

// Config bounds uploads and presigned URLs.
type Config struct {
	MaxUploadBytes int64
	PresignTTL     time.Duration
	PendingTTL     time.Duration
}

// Service manages attachment uploads and their references.
type Service struct {
	repo    Repository
	storage storage.Storage
	cfg     Config
	now     func() time.Time
	log     zerolog.Logger
}

// NewService creates the attachment service.
func NewService(repo Repository, store storage.Storage, cfg Config, log zerolog.Logger) *Service {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = time.Hour
	}
	return &Service{
		repo:    repo,
		storage: store,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log.With().Str("component", "attachment-service").Logger(),
	}
}

// Upload reads body, sniffs its type and stores it as an uploaded reference.
func (s *Service) Upload(ctx context.Context, in UploadInput, body io.Reader) (*FileReference, error) {
	if in.Size > s.cfg.MaxUploadBytes {
		metrics.RecordUpload("too_large", 0)
		return nil, s.tooLarge(ctx)
	}
	data, err := io.ReadAll(io.LimitReader(body, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"failed to read upload", err, "4c2f8e1a-7b3d-4a95-8e60-1d9c5b7f2a34")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		metrics.RecordUpload("too_large", 0)
		return nil, s.tooLarge(ctx)
	}
	if len(data) == 0 {
		metrics.RecordUpload("rejected", 0)
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"file is empty", nil, "a91d3e5c-2f7b-4d80-b6e4-3c8a0f1d7e29")
	}

	detected := mimetype.Detect(data)
	mimeType := baseMIME(detected.String())
	if !allowedMIMEs[mimeType] {
		metrics.RecordUpload("rejected", 0)
		return nil, unsupportedType(ctx, mimeType)
	}

	id := idgen.New(idgen.PrefixFile)
	file := &FileReference{
		ID:        id,
		UserID:    in.UserID,
		Bucket:    s.storage.Bucket(),
		ObjectKey: objectKey(in.UserID, id, extensionFor(detected.Extension(), in.Filename)),
		Filename:  cleanFilename(in.Filename),
		MimeType:  mimeType,
		SizeBytes: int64(len(data)),
		Status:    StatusUploaded,
		CreatedAt: s.now(),
	}
	file.UpdatedAt = file.CreatedAt

	if err := s.storage.Upload(ctx, file.ObjectKey, bytes.NewReader(data), file.SizeBytes, file.MimeType); err != nil {
		metrics.RecordUpload("error", 0)
		return nil, s.storageError(ctx, err, "failed to store file")
	}
	if err := s.repo.Create(ctx, file); err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), file.ObjectKey); delErr != nil {
			s.log.Warn().Err(delErr).Str("file_id", id).Msg("failed to remove orphaned object")
		}
		metrics.RecordUpload("error", 0)
		return nil, err
	}

	metrics.RecordUpload("ok", file.SizeBytes)
	s.log.Info().Str("file_id", id).Str("mime", mimeType).Int64("size_bytes", file.SizeBytes).Msg("file uploaded")
	return file, nil
}

// PrepareUpload records a pending reference and returns a presigned PUT for it.
func (s *Service) PrepareUpload(ctx context.Context, in PrepareUploadInput) (*PreparedUpload, error) {
	if in.SizeBytes <= 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"size_bytes must be positive", nil, "6e0b2d4f-9a1c-4e73-8b5d-0f2e6a9c1d47")
	}
	if in.SizeBytes > s.cfg.MaxUploadBytes {
		return nil, s.tooLarge(ctx)
	}
	mimeType := baseMIME(in.MimeType)
	if !allowedMIMEs[mimeType] {
		return nil, unsupportedType(ctx, mimeType)
	}

	ext := ""
	if known := mimetype.Lookup(mimeType); known != nil {
		ext = known.Extension()
	}
	id := idgen.New(idgen.PrefixFile)
	file := &FileReference{
		ID:        id,
		UserID:    in.UserID,
		Bucket:    s.storage.Bucket(),
		ObjectKey: objectKey(in.UserID, id, extensionFor(ext, in.Filename)),
		Filename:  cleanFilename(in.Filename),
		MimeType:  mimeType,
		SizeBytes: in.SizeBytes,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}
	file.UpdatedAt = file.CreatedAt

	url, err := s.storage.PresignPut(ctx, file.ObjectKey, file.MimeType, s.cfg.PresignTTL)
	if err != nil {
		return nil, s.storageError(ctx, err, "failed to prepare upload")
	}
	if err := s.repo.Create(ctx, file); err != nil {
		return nil, err
	}
	return &PreparedUpload{File: file, UploadURL: url, ExpiresAt: file.CreatedAt.Add(s.cfg.PresignTTL)}, nil
}

// Complete checks that a presigned upload landed and marks the reference accordingly.
func (s *Service) Complete(ctx context.Context, userID, id string) (*FileReference, error) {
	file, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if file.Status == StatusUploaded {
		return file, nil
	}

	info, err := s.storage.Stat(ctx, file.ObjectKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		s.markFailed(ctx, file)
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"upload has not been received", nil, "b7e3a0c9-4d2f-4b68-9e15-6a8c3f0d2b71")
	}
	if err != nil {
		return nil, s.storageError(ctx, err, "failed to check upload")
	}
	if info.Size > s.cfg.MaxUploadBytes {
		if delErr := s.storage.Delete(ctx, file.ObjectKey); delErr != nil {
			s.log.Warn().Err(delErr).Str("file_id", id).Msg("failed to remove oversized object")
		}
		s.markFailed(ctx, file)
		metrics.RecordUpload("too_large", 0)
		return nil, s.tooLarge(ctx)
	}

	mimeType := file.MimeType
	if declared := baseMIME(info.ContentType); declared != "" && allowedMIMEs[declared] {
		mimeType = declared
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusUploaded, info.Size, mimeType); err != nil {
		return nil, err
	}
	file.Status = StatusUploaded
	file.SizeBytes = info.Size
	file.MimeType = mimeType
	file.UpdatedAt = s.now()
	metrics.RecordUpload("ok", info.Size)
	return file, nil
}

// Get returns the reference and, once uploaded, a presigned download URL.
func (s *Service) Get(ctx context.Context, userID, id string) (*Download, error) {
	file, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	out := &Download{File: file}
	if file.Status != StatusUploaded {
		return out, nil
	}
	url, err := s.storage.PresignGet(ctx, file.ObjectKey, s.cfg.PresignTTL)
	if err != nil {
		return nil, s.storageError(ctx, err, "failed to sign download")
	}
	expires := s.now().Add(s.cfg.PresignTTL)
	out.URL = url
	out.ExpiresAt = &expires
	return out, nil
}

// PurgeStale removes pending references older than the pending TTL along with any
// object that was written for them. It returns how many references were removed.
func (s *Service) PurgeStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.PendingTTL)
	removed := 0
	for {
		stale, err := s.repo.ListPendingBefore(ctx, cutoff, purgeBatchSize)
		if err != nil {
			return removed, err
		}
		for _, file := range stale {
			if err := s.storage.Delete(ctx, file.ObjectKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) && !errors.Is(err, storage.ErrStorageDisabled) {
				s.log.Warn().Err(err).Str("file_id", file.ID).Msg("failed to delete stale object")
			}
			if err := s.repo.Delete(ctx, file.ID); err != nil {
				return removed, err
			}
			removed++
		}
		if len(stale) < purgeBatchSize {
			break
		}
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("purged stale pending uploads")
	}
	return removed, nil
}

// owned hides references belonging to other users behind NOT_FOUND.
func (s *Service) owned(ctx context.Context, userID, id string) (*FileReference, error) {
	file, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.UserID != userID {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"file not found", nil, "3f8d1b6e-0c7a-4e29-a5d3-9b2e7f4c1a60")
	}
	return file, nil
}

func (s *Service) markFailed(ctx context.Context, file *FileReference) {
	if err := s.repo.UpdateStatus(ctx, file.ID, StatusFailed, file.SizeBytes, file.MimeType); err != nil {
		s.log.Warn().Err(err).Str("file_id", file.ID).Msg("failed to mark upload failed")
	}
}

func (s *Service) tooLarge(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeTooLarge,
		fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxUploadBytes), nil, "d2a6c9e1-5b8f-4f37-a0c4-8e1d3b7a6f52")
}

func (s *Service) storageError(ctx context.Context, err error, message string) error {
	if errors.Is(err, storage.ErrStorageDisabled) {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnavailable,
			"file uploads are not available", err, "7a1e4c8b-3d6f-4b92-8c05-2e9f1a7d4b36")
	}
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
		message, err, "e5c0b8d3-1a4f-4e67-9d28-6f3a0c9e2b18")
}

func unsupportedType(ctx context.Context, mimeType string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
		fmt.Sprintf("unsupported file type %s", mimeType), nil, "90b4f2e7-6c1d-4a38-b7e9-0d5c3a8f1e64")
}

func baseMIME(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(raw); err == nil {
		return strings.ToLower(parsed)
	}
	return strings.ToLower(raw)
}

func objectKey(userID, fileID, ext string) string {
	return fmt.Sprintf("uploads/%s/%s%s", userID, fileID, ext)
}

// extensionFor prefers the sniffed extension and falls back to the client's filename.
func extensionFor(detected, filename string) string {
	if detected != "" {
		return detected
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		return ""
	}
	return ext
}

func cleanFilename(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "." || name == "/" {
		return ""
	}
	if runes := []rune(name); len(runes) > 255 {
		name = string(runes[:255])
	}
	return name
}
