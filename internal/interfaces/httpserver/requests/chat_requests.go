package requests

import (
	"encoding/json"
	"errors"
	"strings"

	"chat-relay/internal/domain/conversation"
)

var (
	ErrNoMessages     = errors.New("input.messages must not be empty")
	ErrLastNotHuman   = errors.New("the last message must come from the user")
	ErrEmptyLastInput = errors.New("the last message must have content")
)

// ChatStreamRequest starts one relayed turn. Input is forwarded to the run unchanged.
type ChatStreamRequest struct {
	ConversationID string          `json:"conversation_id,omitempty" example:"conv_3k9d0a1b2c3d4e5f"`
	ThreadID       string          `json:"thread_id,omitempty"`
	Input          json.RawMessage `json:"input" binding:"required" swaggertype:"object"`
}

// ChatInput is the part of the run input the relay inspects.
type ChatInput struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage accepts both the graph style (type: human) and the chat style (role: user).
type ChatMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type,omitempty"`
	Role    string          `json:"role,omitempty"`
	Content json.RawMessage `json:"content"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime,omitempty"`
}

// IsHuman reports whether the message was written by the user.
func (m ChatMessage) IsHuman() bool {
	kind := strings.ToLower(m.Type)
	if kind == "" {
		kind = strings.ToLower(m.Role)
	}
	return kind == "human" || kind == "user"
}

// StoredContent converts the message content into the persisted payload. Content is
// either a string or a list of typed parts; unknown part types are skipped.
func (m ChatMessage) StoredContent() (conversation.Content, error) {
	if len(m.Content) == 0 || string(m.Content) == "null" {
		return conversation.Content{}, nil
	}

	var text string
	if err := json.Unmarshal(m.Content, &text); err == nil {
		if strings.TrimSpace(text) == "" {
			return conversation.Content{}, nil
		}
		return conversation.TextContent(text), nil
	}

	var parts []contentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return conversation.Content{}, err
	}
	content := conversation.Content{}
	for _, p := range parts {
		switch p.Type {
		case "text":
			if strings.TrimSpace(p.Text) != "" {
				content.Parts = append(content.Parts, conversation.Part{Type: conversation.PartText, Text: p.Text})
			}
		case "file":
			if p.FileID != "" {
				content.Parts = append(content.Parts, conversation.Part{
					Type:     conversation.PartFile,
					FileID:   p.FileID,
					Name:     p.Name,
					MimeType: p.MimeType,
				})
			}
		}
	}
	return content, nil
}

// LastUserContent validates the message list and returns the content of the final
// user message.
func (r ChatStreamRequest) LastUserContent() (conversation.Content, error) {
	var input ChatInput
	if err := json.Unmarshal(r.Input, &input); err != nil {
		return conversation.Content{}, err
	}
	if len(input.Messages) == 0 {
		return conversation.Content{}, ErrNoMessages
	}
	last := input.Messages[len(input.Messages)-1]
	if !last.IsHuman() {
		return conversation.Content{}, ErrLastNotHuman
	}
	content, err := last.StoredContent()
	if err != nil {
		return conversation.Content{}, err
	}
	if len(content.Parts) == 0 {
		return conversation.Content{}, ErrEmptyLastInput
	}
	return content, nil
}
