package handlers

import (
	"github.com/rs/zerolog"

	"chat-relay/internal/config"
	"chat-relay/internal/domain/conversation"
)

// Provider wires HTTP handlers.
type Provider struct {
	Chat         *ChatHandler
	Conversation *ConversationHandler
	File         *FileHandler
}

func NewProvider(
	cfg *config.Config,
	streamer ChatStreamer,
	runs RunCanceller,
	conversations conversation.Service,
	files FileService,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Chat:         NewChatHandler(streamer, runs, conversations, log),
		Conversation: NewConversationHandler(conversations, log),
		File:         NewFileHandler(files, cfg.MaxUploadBytes, log),
	}
}
