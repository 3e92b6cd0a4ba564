package responses

import (
	"chat-relay/internal/domain/conversation"
)

// ConversationResponse is the public view of a conversation.
type ConversationResponse struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Title     string `json:"title"`
	ThreadID  string `json:"thread_id,omitempty"`
	Archived  bool   `json:"archived"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// ConversationListResponse is one page of conversations, newest first.
type ConversationListResponse struct {
	Object  string                 `json:"object"`
	Data    []ConversationResponse `json:"data"`
	FirstID string                 `json:"first_id"`
	LastID  string                 `json:"last_id"`
	HasMore bool                   `json:"has_more"`
}

// ConversationDeletedResponse confirms a delete.
type ConversationDeletedResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// MessageResponse is one stored message.
type MessageResponse struct {
	ID             string               `json:"id"`
	Object         string               `json:"object"`
	ConversationID string               `json:"conversation_id"`
	Role           conversation.Role    `json:"role"`
	Content        conversation.Content `json:"content"`
	CreatedAt      int64                `json:"created_at"`
}

// MessageListResponse lists the messages of a conversation, oldest first.
type MessageListResponse struct {
	Object string            `json:"object"`
	Data   []MessageResponse `json:"data"`
}

// CancelRunResponse acknowledges a cancel request.
type CancelRunResponse struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	Status string `json:"status"`
}

func NewConversationResponse(conv *conversation.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        conv.ID,
		Object:    "conversation",
		Title:     conv.Title,
		ThreadID:  conv.ThreadID,
		Archived:  conv.Archived,
		CreatedAt: conv.CreatedAt.Unix(),
		UpdatedAt: conv.UpdatedAt.Unix(),
	}
}

// NewConversationListResponse builds a page. hasMore is computed by the caller, which
// asks for one row more than it returns.
func NewConversationListResponse(conversations []conversation.Conversation, hasMore bool) ConversationListResponse {
	data := make([]ConversationResponse, 0, len(conversations))
	for i := range conversations {
		data = append(data, NewConversationResponse(&conversations[i]))
	}
	resp := ConversationListResponse{Object: "list", Data: data, HasMore: hasMore}
	if len(data) > 0 {
		resp.FirstID = data[0].ID
		resp.LastID = data[len(data)-1].ID
	}
	return resp
}

func NewMessageListResponse(messages []conversation.Message) MessageListResponse {
	data := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		data = append(data, MessageResponse{
			ID:             msg.ID,
			Object:         "message",
			ConversationID: msg.ConversationID,
			Role:           msg.Role,
			Content:        msg.Content,
			CreatedAt:      msg.CreatedAt.Unix(),
		})
	}
	return MessageListResponse{Object: "list", Data: data}
}
