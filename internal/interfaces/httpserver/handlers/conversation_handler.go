package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chat-relay/internal/domain/conversation"
	"chat-relay/internal/infrastructure/auth"
	"chat-relay/internal/interfaces/httpserver/requests"
	"chat-relay/internal/interfaces/httpserver/responses"
	"chat-relay/internal/utils/platformerrors"
)

const defaultPageSize = 20

// ConversationHandler serves conversation history.
type ConversationHandler struct {
	service conversation.Service
	log     zerolog.Logger
}

func NewConversationHandler(service conversation.Service, log zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: service,
		log:     log.With().Str("component", "conversation-handler").Logger(),
	}
}

// ListConversations godoc
// @Summary      List conversations
// @Description  Returns the caller's conversations, most recently updated first.
// @Tags         conversations
// @Produce      json
// @Param        archived  query     bool  false  "Only archived conversations"
// @Param        limit     query     int   false  "Page size (1-100)"
// @Param        offset    query     int   false  "Rows to skip"
// @Success      200       {object}  responses.ConversationListResponse
// @Failure      400       {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations [get]
func (h *ConversationHandler) ListConversations(reqCtx *gin.Context) {
	var query requests.ListConversationsQuery
	if err := reqCtx.ShouldBindQuery(&query); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid query parameters", "6a2f9c1e-4b3d-4e5f-8a7b-9c0d1e2f3a4b", h.log)
		return
	}
	limit := query.Limit
	if limit == 0 {
		limit = defaultPageSize
	}

	items, err := h.service.ListConversations(reqCtx.Request.Context(), auth.UserID(reqCtx), conversation.ListFilter{
		Archived: query.Archived,
		Limit:    limit,
		Offset:   query.Offset,
	})
	if err != nil {
		responses.HandleError(reqCtx, err, h.log)
		return
	}
	// A full page may be the last one; clients stop on an empty page.
	reqCtx.JSON(http.StatusOK, responses.NewConversationListResponse(items, len(items) == limit))
}

// GetConversation godoc
// @Summary      Get a conversation
// @Tags         conversations
// @Produce      json
// @Param        id   path      string  true  "Conversation ID"
// @Success      200  {object}  responses.ConversationResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations/{id} [get]
func (h *ConversationHandler) GetConversation(reqCtx *gin.Context) {
	conv, err := h.service.GetConversation(reqCtx.Request.Context(), auth.UserID(reqCtx), reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err, h.log)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.NewConversationResponse(conv))
}

// UpdateConversation godoc
// @Summary      Rename or archive a conversation
// @Tags         conversations
// @Accept       json
// @Produce      json
// @Param        id       path      string                              true  "Conversation ID"
// @Param        request  body      requests.UpdateConversationRequest  true  "Fields to change"
// @Success      200      {object}  responses.ConversationResponse
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      404      {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations/{id} [patch]
func (h *ConversationHandler) UpdateConversation(reqCtx *gin.Context) {
	var request requests.UpdateConversationRequest
	if err := reqCtx.ShouldBindJSON(&request); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body", "c4e8a2b6-1d3f-4a5c-8e7b-2f9d0a1c3e5b", h.log)
		return
	}
	conv, err := h.service.UpdateConversation(reqCtx.Request.Context(), auth.UserID(reqCtx), reqCtx.Param("id"), conversation.UpdateInput{
		Title:    request.Title,
		Archived: request.Archived,
	})
	if err != nil {
		responses.HandleError(reqCtx, err, h.log)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.NewConversationResponse(conv))
}

// DeleteConversation godoc
// @Summary      Delete a conversation
// @Description  Removes the conversation and all of its messages.
// @Tags         conversations
// @Produce      json
// @Param        id   path      string  true  "Conversation ID"
// @Success      200  {object}  responses.ConversationDeletedResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations/{id} [delete]
func (h *ConversationHandler) DeleteConversation(reqCtx *gin.Context) {
	id := reqCtx.Param("id")
	if err := h.service.DeleteConversation(reqCtx.Request.Context(), auth.UserID(reqCtx), id); err != nil {
		responses.HandleError(reqCtx, err, h.log)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.ConversationDeletedResponse{ID: id, Object: "conversation.deleted", Deleted: true})
}

// ListMessages godoc
// @Summary      List messages
// @Tags         conversations
// @Produce      json
// @Param        id   path      string  true  "Conversation ID"
// @Success      200  {object}  responses.MessageListResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations/{id}/messages [get]
func (h *ConversationHandler) ListMessages(reqCtx *gin.Context) {
	messages, err := h.service.ListMessages(reqCtx.Request.Context(), auth.UserID(reqCtx), reqCtx.Param("id"))
	if err != nil {
		responses.HandleError(reqCtx, err, h.log)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.NewMessageListResponse(messages))
}
