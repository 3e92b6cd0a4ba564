package v1

import (
	"github.com/gin-gonic/gin"

	"chat-relay/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
}

func NewRoutes(provider *handlers.Provider) *Routes {
	return &Routes{handlers: provider}
}

// Register attaches all v1 routes under /v1 prefix.
func (r *Routes) Register(router gin.IRouter) {
	group := router.Group("/v1")

	chat := group.Group("/chat")
	chat.POST("/stream", r.handlers.Chat.Stream)
	chat.POST("/runs/:run_id/cancel", r.handlers.Chat.CancelRun)

	conversations := group.Group("/conversations")
	conversations.GET("", r.handlers.Conversation.ListConversations)
	conversations.GET("/:id", r.handlers.Conversation.GetConversation)
	conversations.PATCH("/:id", r.handlers.Conversation.UpdateConversation)
	conversations.DELETE("/:id", r.handlers.Conversation.DeleteConversation)
	conversations.GET("/:id/messages", r.handlers.Conversation.ListMessages)

	files := group.Group("/files")
	files.POST("", r.handlers.File.Upload)
	files.POST("/prepare-upload", r.handlers.File.PrepareUpload)
	files.POST("/:id/complete", r.handlers.File.CompleteUpload)
	files.GET("/:id", r.handlers.File.GetFile)
}
