package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chat-relay/internal/utils/idgen"
	"chat-relay/internal/utils/platformerrors"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Redactor scrubs user text before it is logged.
type Redactor interface {
	Preview(text string) string
	UserID(userID string) string
}

// BeginTurnInput describes the start-of-turn write.
type BeginTurnInput struct {
	ConversationID string
	UserID         string
	ThreadID       string
	MessageID      string
	Content        Content
	At             time.Time
}

// FinishTurnInput describes the end-of-turn write.
type FinishTurnInput struct {
	ConversationID string
	UserID         string
	ThreadID       string
	MessageID      string
	Text           string
	Status         TurnStatus
}

// UpdateInput is a partial update of user-editable conversation fields.
type UpdateInput struct {
	Title    *string
	Archived *bool
}

// Service describes the conversation use cases, including the two persistence
// paths of a relayed turn.
type Service interface {
	GetConversation(ctx context.Context, userID, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string, filter ListFilter) ([]Conversation, error)
	UpdateConversation(ctx context.Context, userID, id string, in UpdateInput) (*Conversation, error)
	DeleteConversation(ctx context.Context, userID, id string) error
	ListMessages(ctx context.Context, userID, id string) ([]Message, error)

	BeginTurn(ctx context.Context, in BeginTurnInput) error
	FinishTurn(ctx context.Context, in FinishTurnInput) error
}

type service struct {
	repo     Repository
	redactor Redactor
	now      func() time.Time
	log      zerolog.Logger
}

// NewService wires the conversation service with its repository.
func NewService(repo Repository, redactor Redactor, log zerolog.Logger) Service {
	return &service{
		repo:     repo,
		redactor: redactor,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "conversation-service").Logger(),
	}
}

func (s *service) GetConversation(ctx context.Context, userID, id string) (*Conversation, error) {
	conv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		// Someone else's conversation is reported exactly like a missing one.
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"conversation not found", nil, "5c4c2fd1-51a8-4c0e-8a3c-0e9f7a2e6b11")
	}
	return conv, nil
}

func (s *service) ListConversations(ctx context.Context, userID string, filter ListFilter) ([]Conversation, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, userID, filter)
}

func (s *service) UpdateConversation(ctx context.Context, userID, id string, in UpdateInput) (*Conversation, error) {
	if _, err := s.GetConversation(ctx, userID, id); err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				"title must not be empty", nil, "b7e3a0f4-6a53-4c71-9f0e-3d7d25a4c9c2")
		}
		in.Title = &title
	}
	if in.Title == nil && in.Archived == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"nothing to update", nil, "0f6a71c8-2a3d-4e84-b1a6-8f3f6f3b9a07")
	}
	if err := s.repo.Update(ctx, id, in.Title, in.Archived); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

func (s *service) DeleteConversation(ctx context.Context, userID, id string) error {
	if _, err := s.GetConversation(ctx, userID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *service) ListMessages(ctx context.Context, userID, id string) ([]Message, error) {
	if _, err := s.GetConversation(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, id)
}

// BeginTurn stores the user's message, creating the conversation on first use.
func (s *service) BeginTurn(ctx context.Context, in BeginTurnInput) error {
	at := in.At
	if at.IsZero() {
		at = s.now()
	}
	conv, err := s.ensure(ctx, in.ConversationID, in.UserID, in.ThreadID, at)
	if err != nil {
		return err
	}

	messageID := in.MessageID
	if messageID == "" {
		messageID = idgen.New(idgen.PrefixMessage)
	}
	msg := &Message{
		ID:             messageID,
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        in.Content,
		UserID:         in.UserID,
		CreatedAt:      at,
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "store user message")
	}

	if conv.HasDefaultTitle() {
		if title := TitleFrom(in.Content.Text()); title != "" {
			if _, err := s.repo.SetTitleIfDefault(ctx, conv.ID, title); err != nil {
				return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "set conversation title")
			}
		}
	}

	if err := s.repo.Touch(ctx, conv.ID, in.ThreadID, at); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "touch conversation")
	}

	s.log.Debug().
		Str("conversation_id", conv.ID).
		Str("message_id", msg.ID).
		Str("user", s.redactor.UserID(in.UserID)).
		Str("preview", s.redactor.Preview(in.Content.Text())).
		Msg("user message stored")
	return nil
}

// FinishTurn stores the assistant text, if any, and refreshes conversation metadata.
func (s *service) FinishTurn(ctx context.Context, in FinishTurnInput) error {
	now := s.now()
	conv, err := s.ensure(ctx, in.ConversationID, in.UserID, in.ThreadID, now)
	if err != nil {
		return err
	}

	if in.Text != "" {
		messageID := in.MessageID
		if messageID == "" {
			messageID = idgen.New(idgen.PrefixMessage)
		}
		content := TextContent(in.Text)
		content.Status = in.Status
		content.Aborted = in.Status == TurnAborted
		msg := &Message{
			ID:             messageID,
			ConversationID: conv.ID,
			Role:           RoleAssistant,
			Content:        content,
			UserID:         in.UserID,
			CreatedAt:      now,
		}
		if err := s.repo.AppendMessage(ctx, msg); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "store assistant message")
		}
	}

	// The start-of-turn write may have lost the race or failed; re-read before naming.
	current, err := s.repo.Get(ctx, conv.ID)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "reload conversation")
	}
	if current.HasDefaultTitle() {
		first, err := s.repo.FirstUserMessage(ctx, conv.ID)
		switch {
		case err == nil:
			if title := TitleFrom(first.Content.Text()); title != "" {
				if _, err := s.repo.SetTitleIfDefault(ctx, conv.ID, title); err != nil {
					return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "set conversation title")
				}
			}
		case platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound):
		default:
			return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "load first user message")
		}
	}

	if err := s.repo.Touch(ctx, conv.ID, in.ThreadID, now); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "touch conversation")
	}

	s.log.Debug().
		Str("conversation_id", conv.ID).
		Str("status", string(in.Status)).
		Int("text_len", len(in.Text)).
		Msg("turn finished")
	return nil
}

// ensure loads the conversation or creates it with the placeholder title.
func (s *service) ensure(ctx context.Context, id, userID, threadID string, at time.Time) (*Conversation, error) {
	conv, err := s.repo.Get(ctx, id)
	if err == nil {
		if conv.UserID != userID {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
				"conversation belongs to another user", nil, "e2b8c65d-7b0f-4a40-9d7e-9c1c4a6f2d90")
		}
		return conv, nil
	}
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "load conversation")
	}

	conv = &Conversation{
		ID:        id,
		Title:     DefaultTitle,
		ThreadID:  threadID,
		UserID:    userID,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict) {
			// A concurrent write created it first.
			return s.ensure(ctx, id, userID, threadID, at)
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "create conversation")
	}
	s.log.Info().Str("conversation_id", id).Msg("conversation created")
	return conv, nil
}
