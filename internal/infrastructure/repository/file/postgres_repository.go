package file

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	domain "chat-relay/internal/domain/attachment"
	"chat-relay/internal/infrastructure/database/entities"
	"chat-relay/internal/utils/platformerrors"
)

// PostgresRepository stores file references in PostgreSQL.
type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, file *domain.FileReference) error {
	record := toEntity(file)
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return dbError(ctx, "failed to create file reference", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.FileReference, error) {
	var record entities.FileReference
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(ctx, id)
		}
		return nil, dbError(ctx, "failed to load file reference", err)
	}
	file := toDomain(record)
	return &file, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.Status, sizeBytes int64, mimeType string) error {
	result := r.db.WithContext(ctx).
		Model(&entities.FileReference{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"size_bytes": sizeBytes,
			"mime":       mimeType,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return dbError(ctx, "failed to update file reference", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound(ctx, id)
	}
	return nil
}

func (r *PostgresRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.FileReference, error) {
	var records []entities.FileReference
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(domain.StatusPending), cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, dbError(ctx, "failed to list pending file references", err)
	}
	out := make([]domain.FileReference, 0, len(records))
	for _, rec := range records {
		out = append(out, toDomain(rec))
	}
	return out, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&entities.FileReference{}).Error; err != nil {
		return dbError(ctx, "failed to delete file reference", err)
	}
	return nil
}

func toEntity(file *domain.FileReference) entities.FileReference {
	return entities.FileReference{
		ID:        file.ID,
		UserID:    file.UserID,
		Bucket:    file.Bucket,
		ObjectKey: file.ObjectKey,
		Filename:  file.Filename,
		Mime:      file.MimeType,
		SizeBytes: file.SizeBytes,
		Status:    string(file.Status),
		CreatedAt: file.CreatedAt,
		UpdatedAt: file.UpdatedAt,
	}
}

func toDomain(rec entities.FileReference) domain.FileReference {
	return domain.FileReference{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Bucket:    rec.Bucket,
		ObjectKey: rec.ObjectKey,
		Filename:  rec.Filename,
		MimeType:  rec.Mime,
		SizeBytes: rec.SizeBytes,
		Status:    domain.Status(rec.Status),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func notFound(ctx context.Context, id string) error {
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"file not found", nil, "c6a2e9f1-8b4d-4f03-a7e5-1d9b3c6f0a28", map[string]any{"file_id": id})
}

func dbError(ctx context.Context, message string, err error) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, message, err, "")
}
