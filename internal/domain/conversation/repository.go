package conversation

import (
	"context"
	"time"
)

// Repository persists conversations and their messages.
//
// Implementations report a missing row as a platformerrors NOT_FOUND error and a
// duplicate id on Create as CONFLICT.
type Repository interface {
	Create(ctx context.Context, conv *Conversation) error
	Get(ctx context.Context, id string) (*Conversation, error)
	List(ctx context.Context, userID string, filter ListFilter) ([]Conversation, error)
	// SetTitleIfDefault writes title only while the stored title is still the placeholder.
	SetTitleIfDefault(ctx context.Context, id, title string) (bool, error)
	Update(ctx context.Context, id string, title *string, archived *bool) error
	// Touch bumps updated_at and, when threadID is non-empty, records the thread.
	Touch(ctx context.Context, id, threadID string, at time.Time) error
	Delete(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	FirstUserMessage(ctx context.Context, conversationID string) (*Message, error)
}
