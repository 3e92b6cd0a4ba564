package conversation

import (
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultTitle is the placeholder a conversation carries until a user message names it.
const DefaultTitle = "新对话"

const titleMaxRunes = 50

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// TurnStatus is how an assistant turn ended.
type TurnStatus string

const (
	TurnCompleted TurnStatus = "completed"
	TurnErrored   TurnStatus = "errored"
	TurnAborted   TurnStatus = "aborted"
)

// Conversation is a user-owned chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Archived  bool      `json:"archived"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasDefaultTitle reports whether the title has not been derived from a message yet.
func (c Conversation) HasDefaultTitle() bool {
	return c.Title == "" || c.Title == DefaultTitle
}

// PartType discriminates the entries of a message content payload.
type PartType string

const (
	PartText PartType = "text"
	PartFile PartType = "file"
)

// Part is one entry of a message payload. File parts reference an uploaded object by id.
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	FileID   string   `json:"file_id,omitempty"`
	Name     string   `json:"name,omitempty"`
	MimeType string   `json:"mime,omitempty"`
}

// Content is the structured payload stored with every message.
type Content struct {
	Parts   []Part     `json:"parts"`
	Status  TurnStatus `json:"status,omitempty"`
	Aborted bool       `json:"aborted,omitempty"`
}

// TextContent wraps plain text as a single-part payload.
func TextContent(text string) Content {
	return Content{Parts: []Part{{Type: PartText, Text: text}}}
}

// Text joins the text parts of the payload.
func (c Content) Text() string {
	texts := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		if p.Type == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// FileIDs lists the attachments referenced by the payload.
func (c Content) FileIDs() []string {
	var ids []string
	for _, p := range c.Parts {
		if p.Type == PartFile && p.FileID != "" {
			ids = append(ids, p.FileID)
		}
	}
	return ids
}

// Message is one append-only entry in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        Content   `json:"content"`
	UserID         string    `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// TitleFrom derives a conversation title from message text. Whitespace is collapsed and
// the result is cut at 50 runes. It returns "" when text has no visible characters.
func TitleFrom(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(title) <= titleMaxRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:titleMaxRunes])) + "…"
}

// ListFilter narrows ListConversations.
type ListFilter struct {
	Archived bool
	Limit    int
	Offset   int
}
