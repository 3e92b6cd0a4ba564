package requests

// ListConversationsQuery pages through the caller's conversations.
type ListConversationsQuery struct {
	Archived bool `form:"archived"`
	Limit    int  `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset   int  `form:"offset" binding:"omitempty,min=0"`
}

// UpdateConversationRequest renames and/or archives a conversation.
type UpdateConversationRequest struct {
	Title    *string `json:"title,omitempty" binding:"omitempty,max=200"`
	Archived *bool   `json:"archived,omitempty"`
}
