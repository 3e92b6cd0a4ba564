package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "chat-relay/internal/domain/conversation"
	"chat-relay/internal/infrastructure/database/entities"
	"chat-relay/internal/utils/platformerrors"
)

// PostgresRepository persists conversations and messages via PostgreSQL using GORM.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository creates a repository backed by the provided DB.
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	record := entities.Conversation{
		ID:        conv.ID,
		UserID:    conv.UserID,
		Title:     conv.Title,
		ThreadID:  conv.ThreadID,
		Archived:  conv.Archived,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isDuplicateKey(err) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
				"conversation already exists", err, "8d0e7a55-3f9b-4c8e-a1d4-2b6f9c0e7d31")
		}
		return dbError(ctx, "failed to create conversation", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	var record entities.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
				"conversation not found", err, "f3a1c2d4-6e7b-4a8c-9d0e-1f2a3b4c5d6e")
		}
		return nil, dbError(ctx, "failed to load conversation", err)
	}
	conv := toDomainConversation(record)
	return &conv, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, filter domain.ListFilter) ([]domain.Conversation, error) {
	var records []entities.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND archived = ?", userID, filter.Archived).
		Order("updated_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&records).Error
	if err != nil {
		return nil, dbError(ctx, "failed to list conversations", err)
	}
	out := make([]domain.Conversation, 0, len(records))
	for _, rec := range records {
		out = append(out, toDomainConversation(rec))
	}
	return out, nil
}

func (r *PostgresRepository) SetTitleIfDefault(ctx context.Context, id, title string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.Conversation{}).
		Where("id = ? AND (title = ? OR title = '')", id, domain.DefaultTitle).
		Update("title", title)
	if result.Error != nil {
		return false, dbError(ctx, "failed to set conversation title", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, title *string, archived *bool) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if title != nil {
		updates["title"] = *title
	}
	if archived != nil {
		updates["archived"] = *archived
	}
	result := r.db.WithContext(ctx).Model(&entities.Conversation{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return dbError(ctx, "failed to update conversation", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound(ctx, id)
	}
	return nil
}

func (r *PostgresRepository) Touch(ctx context.Context, id, threadID string, at time.Time) error {
	updates := map[string]any{"updated_at": at}
	if threadID != "" {
		updates["thread_id"] = threadID
	}
	result := r.db.WithContext(ctx).Model(&entities.Conversation{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return dbError(ctx, "failed to touch conversation", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound(ctx, id)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&entities.Message{}).Error; err != nil {
			return dbError(ctx, "failed to delete messages", err)
		}
		result := tx.Where("id = ?", id).Delete(&entities.Conversation{})
		if result.Error != nil {
			return dbError(ctx, "failed to delete conversation", result.Error)
		}
		if result.RowsAffected == 0 {
			return notFound(ctx, id)
		}
		return nil
	})
}

func (r *PostgresRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	payload, err := json.Marshal(msg.Content)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to encode message content", err, "2e9c4b7a-0d1f-4e36-8a5b-7c3d1e0f9a42")
	}
	record := entities.Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		UserID:         msg.UserID,
		Role:           string(msg.Role),
		Content:        datatypes.JSON(payload),
		CreatedAt:      msg.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return dbError(ctx, "failed to insert message", err)
	}
	return nil
}

func (r *PostgresRepository) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var records []entities.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, dbError(ctx, "failed to list messages", err)
	}
	out := make([]domain.Message, 0, len(records))
	for _, rec := range records {
		msg, err := toDomainMessage(rec)
		if err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to decode message")
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *PostgresRepository) FirstUserMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	var record entities.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND role = ?", conversationID, string(domain.RoleUser)).
		Order("created_at ASC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
				"no user message", err, "4b8d2f6e-1a3c-4e5f-9b7d-0c2e4a6f8b1d")
		}
		return nil, dbError(ctx, "failed to load first user message", err)
	}
	msg, err := toDomainMessage(record)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to decode message")
	}
	return &msg, nil
}

func toDomainConversation(rec entities.Conversation) domain.Conversation {
	return domain.Conversation{
		ID:        rec.ID,
		Title:     rec.Title,
		ThreadID:  rec.ThreadID,
		Archived:  rec.Archived,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toDomainMessage(rec entities.Message) (domain.Message, error) {
	var content domain.Content
	if len(rec.Content) > 0 {
		if err := json.Unmarshal(rec.Content, &content); err != nil {
			return domain.Message{}, err
		}
	}
	return domain.Message{
		ID:             rec.ID,
		ConversationID: rec.ConversationID,
		Role:           domain.Role(rec.Role),
		Content:        content,
		UserID:         rec.UserID,
		CreatedAt:      rec.CreatedAt,
	}, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLSTATE 23505 unique_violation
	return strings.Contains(err.Error(), "23505")
}

func notFound(ctx context.Context, id string) error {
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"conversation not found", nil, "f3a1c2d4-6e7b-4a8c-9d0e-1f2a3b4c5d6e", map[string]any{"conversation_id": id})
}

func dbError(ctx context.Context, message string, err error) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, message, err, "")
}
