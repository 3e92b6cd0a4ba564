package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chat-relay/internal/domain/conversation"
	"chat-relay/internal/domain/relay"
	"chat-relay/internal/infrastructure/auth"
	"chat-relay/internal/infrastructure/runregistry"
	"chat-relay/internal/interfaces/httpserver/middlewares"
	"chat-relay/internal/interfaces/httpserver/requests"
	"chat-relay/internal/interfaces/httpserver/responses"
	"chat-relay/internal/utils/idgen"
	"chat-relay/internal/utils/platformerrors"
)

const (
	HeaderConversationID = "X-Conversation-ID"
	HeaderThreadID       = "X-Thread-ID"
	HeaderRunID          = "X-Run-ID"
	HeaderMessageID      = "X-Message-ID"
)

// ChatStreamer relays one turn to an event writer.
type ChatStreamer interface {
	Stream(ctx context.Context, turn relay.Turn, out relay.EventWriter) relay.Result
}

// RunCanceller stops a run owned by userID.
type RunCanceller interface {
	Cancel(ctx context.Context, runID, userID string) error
}

// ConversationFinder looks up a conversation owned by the caller.
type ConversationFinder interface {
	GetConversation(ctx context.Context, userID, id string) (*conversation.Conversation, error)
}

// ChatHandler exposes the streaming relay and run cancellation.
type ChatHandler struct {
	relay         ChatStreamer
	runs          RunCanceller
	conversations ConversationFinder
	log           zerolog.Logger
}

func NewChatHandler(streamer ChatStreamer, runs RunCanceller, conversations ConversationFinder, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		relay:         streamer,
		runs:          runs,
		conversations: conversations,
		log:           log.With().Str("component", "chat-handler").Logger(),
	}
}

// Stream godoc
// @Summary      Relay a chat turn
// @Description  Streams the upstream run as Server-Sent Events.
// @Description
// @Description  - `partial` carries `[{"id","type":"ai","content"}]` with the full text so far.
// @Description  - `complete` carries `[]` and is sent exactly once, unless the client went away.
// @Description  - Other upstream events are passed through under their own name.
// @Description
// @Description  Failures after the stream started arrive as a `partial` starting with `处理请求时出错：` followed by `complete`.
// @Tags         chat
// @Accept       json
// @Produce      text/event-stream
// @Param        request  body      requests.ChatStreamRequest  true  "Turn to relay"
// @Success      200      {string}  string  "event stream"
// @Header       200      {string}  X-Conversation-ID  "conversation the turn is stored in"
// @Header       200      {string}  X-Run-ID  "id accepted by the cancel endpoint"
// @Header       200      {string}  X-Message-ID  "id of the assistant message"
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      401      {object}  responses.ErrorResponse
// @Failure      404      {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/chat/stream [post]
func (h *ChatHandler) Stream(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()
	userID := auth.UserID(reqCtx)

	var request requests.ChatStreamRequest
	if err := reqCtx.ShouldBindJSON(&request); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body", "0b6f5d5e-8f53-4a4e-9a32-77c1e3c6a0d4", h.log)
		return
	}
	content, err := request.LastUserContent()
	if err != nil {
		message := err.Error()
		if !isRequestRuleError(err) {
			message = "input.messages is malformed"
		}
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, message, "f2a0b1f7-3c0e-4a8b-b0a2-5e1b6a9d7c40", h.log)
		return
	}

	conversationID := strings.TrimSpace(request.ConversationID)
	threadID := strings.TrimSpace(request.ThreadID)
	if conversationID != "" {
		conv, err := h.conversations.GetConversation(ctx, userID, conversationID)
		if err != nil {
			responses.HandleError(reqCtx, err, h.log)
			return
		}
		if threadID == "" {
			threadID = conv.ThreadID
		}
	} else {
		conversationID = idgen.New(idgen.PrefixConversation)
	}

	turn := relay.Turn{
		RunID:          idgen.New(idgen.PrefixRun),
		ConversationID: conversationID,
		UserID:         userID,
		ThreadID:       threadID,
		UserMessageID:  idgen.New(idgen.PrefixMessage),
		MessageID:      idgen.New(idgen.PrefixMessage),
		Input:          request.Input,
		UserContent:    content,
	}

	header := reqCtx.Writer.Header()
	header.Set(HeaderConversationID, turn.ConversationID)
	header.Set(HeaderRunID, turn.RunID)
	header.Set(HeaderMessageID, turn.MessageID)
	if threadID != "" {
		header.Set(HeaderThreadID, threadID)
	}
	flusher, ok := middlewares.PrepareSSE(reqCtx)
	if !ok {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeInternal, "streaming is not supported", "8e0d3b7a-1f2c-4d5e-9a6b-7c8d9e0f1a2b", h.log)
		return
	}
	reqCtx.Status(http.StatusOK)
	flusher.Flush()

	result := h.relay.Stream(ctx, turn, newSSEWriter(reqCtx.Writer, flusher))

	h.log.Debug().
		Str("run_id", turn.RunID).
		Str("conversation_id", turn.ConversationID).
		Str("outcome", string(result.Outcome)).
		Int("frames", result.Frames).
		Bool("persisted", result.Persisted).
		Msg("chat stream closed")
}

// CancelRun godoc
// @Summary      Cancel a running turn
// @Description  Stops the run on whichever instance is streaming it. The partial answer is kept and marked aborted.
// @Tags         chat
// @Produce      json
// @Param        run_id  path      string  true  "Run ID from the X-Run-ID header"
// @Success      202     {object}  responses.CancelRunResponse
// @Failure      404     {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/chat/runs/{run_id}/cancel [post]
func (h *ChatHandler) CancelRun(reqCtx *gin.Context) {
	runID := reqCtx.Param("run_id")
	err := h.runs.Cancel(reqCtx.Request.Context(), runID, auth.UserID(reqCtx))
	if errors.Is(err, runregistry.ErrRunNotFound) {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeNotFound, "run not found", "3d1c7e52-90a4-4b7f-8f0e-2a6c5b4d3e21", h.log)
		return
	}
	if err != nil {
		responses.HandleError(reqCtx, platformerrors.NewError(reqCtx.Request.Context(), platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnavailable, "run could not be cancelled", err, "b8a4c6d2-5e7f-4a1b-9c3d-0e2f4a6b8c1d"), h.log)
		return
	}
	reqCtx.JSON(http.StatusAccepted, responses.CancelRunResponse{
		ID:     runID,
		Object: "chat.run",
		Status: "cancelling",
	})
}

func isRequestRuleError(err error) bool {
	return errors.Is(err, requests.ErrNoMessages) ||
		errors.Is(err, requests.ErrLastNotHuman) ||
		errors.Is(err, requests.ErrEmptyLastInput)
}
