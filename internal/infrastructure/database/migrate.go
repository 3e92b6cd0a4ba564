package database

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"chat-relay/internal/infrastructure/database/entities"
)

// AutoMigrate applies the conversation, message and file reference schema.
func AutoMigrate(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	models := []any{
		&entities.Conversation{},
		&entities.Message{},
		&entities.FileReference{},
	}
	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return err
	}
	log.Info().Int("tables", len(models)).Msg("database schema migrated")
	return nil
}
