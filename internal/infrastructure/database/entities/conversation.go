package entities

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation is the persisted form of a chat conversation.
type Conversation struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	UserID    string    `gorm:"type:varchar(255);not null;index:idx_conversations_user_updated,priority:1"`
	Title     string    `gorm:"type:varchar(255);not null"`
	ThreadID  string    `gorm:"type:varchar(255)"`
	Archived  bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"index:idx_conversations_user_updated,priority:2"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message is one row per turn per role. Content is the JSON payload of parts.
type Message struct {
	ID             string         `gorm:"type:varchar(64);primaryKey"`
	ConversationID string         `gorm:"type:varchar(64);not null;index:idx_messages_conversation_created,priority:1"`
	UserID         string         `gorm:"type:varchar(255);not null"`
	Role           string         `gorm:"type:varchar(16);not null"`
	Content        datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_messages_conversation_created,priority:2"`
}

func (Message) TableName() string {
	return "messages"
}
