package conversation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/domain/conversation"
	repo "chat-relay/internal/infrastructure/repository/conversation"
	"chat-relay/internal/utils/platformerrors"
)

type plainRedactor struct{}

func (plainRedactor) Preview(text string) string  { return text }
func (plainRedactor) UserID(userID string) string { return userID }

func newService(t *testing.T) (conversation.Service, *repo.InMemoryRepository) {
	t.Helper()
	r := repo.NewInMemoryRepository()
	return conversation.NewService(r, plainRedactor{}, zerolog.Nop()), r
}

func TestBeginTurn_CreatesConversationAndNamesIt(t *testing.T) {
	svc, r := newService(t)
	ctx := context.Background()

	err := svc.BeginTurn(ctx, conversation.BeginTurnInput{
		ConversationID: "conv_1",
		UserID:         "u1",
		ThreadID:       "thread_1",
		Content:        conversation.TextContent("  帮我   总结一下这份财报  "),
	})
	require.NoError(t, err)

	conv, err := r.Get(ctx, "conv_1")
	require.NoError(t, err)
	assert.Equal(t, "帮我 总结一下这份财报", conv.Title)
	assert.Equal(t, "thread_1", conv.ThreadID)
	assert.Equal(t, "u1", conv.UserID)

	msgs, err := r.ListMessages(ctx, "conv_1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
}

func TestBeginTurn_KeepsExistingTitle(t *testing.T) {
	svc, r := newService(t)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, &conversation.Conversation{ID: "conv_1", UserID: "u1", Title: "Budget"}))

	require.NoError(t, svc.BeginTurn(ctx, conversation.BeginTurnInput{
		ConversationID: "conv_1",
		UserID:         "u1",
		Content:        conversation.TextContent("second question"),
	}))

	conv, err := r.Get(ctx, "conv_1")
	require.NoError(t, err)
	assert.Equal(t, "Budget", conv.Title)
}

func TestBeginTurn_RejectsForeignConversation(t *testing.T) {
	svc, r := newService(t)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, &conversation.Conversation{ID: "conv_1", UserID: "owner", Title: conversation.DefaultTitle}))

	err := svc.BeginTurn(ctx, conversation.BeginTurnInput{ConversationID: "conv_1", UserID: "intruder", Content: conversation.TextContent("hi")})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))

	msgs, _ := r.ListMessages(ctx, "conv_1")
	assert.Empty(t, msgs)
}

func TestFinishTurn_StoresOneAssistantMessage(t *testing.T) {
	svc, r := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.BeginTurn(ctx, conversation.BeginTurnInput{ConversationID: "conv_1", UserID: "u1", Content: conversation.TextContent("hello")}))

	require.NoError(t, svc.FinishTurn(ctx, conversation.FinishTurnInput{
		ConversationID: "conv_1",
		UserID:         "u1",
		ThreadID:       "thread_9",
		MessageID:      "msg_assistant",
		Text:           "Hel",
		Status:         conversation.TurnAborted,
	}))

	msgs, err := r.ListMessages(ctx, "conv_1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assistant := msgs[1]
	assert.Equal(t, "msg_assistant", assistant.ID)
	assert.Equal(t, conversation.RoleAssistant, assistant.Role)
	assert.Equal(t, "Hel", assistant.Content.Text())
	assert.True(t, assistant.Content.Aborted)
	assert.Equal(t, conversation.TurnAborted, assistant.Content.Status)

	conv, err := r.Get(ctx, "conv_1")
	require.NoError(t, err)
	assert.Equal(t, "thread_9", conv.ThreadID)
}

func TestFinishTurn_EmptyTextWritesNoMessage(t *testing.T) {
	svc, r := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.FinishTurn(ctx, conversation.FinishTurnInput{
		ConversationID: "conv_1",
		UserID:         "u1",
		ThreadID:       "thread_1",
		Status:         conversation.TurnAborted,
	}))

	msgs, err := r.ListMessages(ctx, "conv_1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	conv, err := r.Get(ctx, "conv_1")
	require.NoError(t, err)
	assert.Equal(t, conversation.DefaultTitle, conv.Title)
	assert.Equal(t, "thread_1", conv.ThreadID)
}

// failingTitleRepo drops the start-of-turn title update so FinishTurn has to fill it in.
type failingTitleRepo struct {
	*repo.InMemoryRepository
	failures int
}

func (f *failingTitleRepo) SetTitleIfDefault(ctx context.Context, id, title string) (bool, error) {
	if f.failures > 0 {
		f.failures--
		return false, errors.New("db unavailable")
	}
	return f.InMemoryRepository.SetTitleIfDefault(ctx, id, title)
}

func TestFinishTurn_NamesFromFirstUserMessage(t *testing.T) {
	r := &failingTitleRepo{InMemoryRepository: repo.NewInMemoryRepository(), failures: 1}
	svc := conversation.NewService(r, plainRedactor{}, zerolog.Nop())
	ctx := context.Background()

	err := svc.BeginTurn(ctx, conversation.BeginTurnInput{
		ConversationID: "conv_1",
		UserID:         "u1",
		Content:        conversation.TextContent("what is the weather"),
		At:             time.Now().Add(-time.Second),
	})
	require.Error(t, err)

	require.NoError(t, svc.FinishTurn(ctx, conversation.FinishTurnInput{ConversationID: "conv_1", UserID: "u1", Text: "sunny", Status: conversation.TurnCompleted}))

	conv, err := r.Get(ctx, "conv_1")
	require.NoError(t, err)
	assert.Equal(t, "what is the weather", conv.Title)
}

func TestGetConversation_HidesOtherUsers(t *testing.T) {
	svc, r := newService(t)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, &conversation.Conversation{ID: "conv_1", UserID: "owner"}))

	_, err := svc.GetConversation(ctx, "someone", "conv_1")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	conv, err := svc.GetConversation(ctx, "owner", "conv_1")
	require.NoError(t, err)
	assert.Equal(t, "conv_1", conv.ID)
}

func TestUpdateConversation(t *testing.T) {
	svc, r := newService(t)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, &conversation.Conversation{ID: "conv_1", UserID: "u1", Title: conversation.DefaultTitle}))

	blank := "   "
	_, err := svc.UpdateConversation(ctx, "u1", "conv_1", conversation.UpdateInput{Title: &blank})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))

	_, err = svc.UpdateConversation(ctx, "u1", "conv_1", conversation.UpdateInput{})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))

	title, archived := " Renamed ", true
	conv, err := svc.UpdateConversation(ctx, "u1", "conv_1", conversation.UpdateInput{Title: &title, Archived: &archived})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", conv.Title)
	assert.True(t, conv.Archived)

	list, err := svc.ListConversations(ctx, "u1", conversation.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.ListConversations(ctx, "u1", conversation.ListFilter{Archived: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeleteConversation(t *testing.T) {
	svc, r := newService(t)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, &conversation.Conversation{ID: "conv_1", UserID: "u1"}))

	assert.Error(t, svc.DeleteConversation(ctx, "u2", "conv_1"))
	require.NoError(t, svc.DeleteConversation(ctx, "u1", "conv_1"))

	_, err := r.Get(ctx, "conv_1")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}
