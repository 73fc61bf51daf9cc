package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/myworkflows/chat-service/internal/api/dto"
	"github.com/myworkflows/chat-service/internal/api/middleware"
	"github.com/myworkflows/chat-service/internal/api/sse"
	domainerrors "github.com/myworkflows/chat-service/internal/domain/errors"
	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/services/bridge"
	"github.com/myworkflows/chat-service/internal/services/conversation"
	"github.com/myworkflows/chat-service/internal/services/turncache"
)

// MessagesHandler serves chat history and the SSE chat endpoint.
type MessagesHandler struct {
	store     conversation.Store
	bridge    bridge.Processor
	turnCache turncache.Service
	pageLimit int
}

// NewMessagesHandler creates a new MessagesHandler. turnCache may be nil.
func NewMessagesHandler(store conversation.Store, processor bridge.Processor, turnCache turncache.Service, pageLimit int) *MessagesHandler {
	if pageLimit <= 0 {
		pageLimit = conversation.DefaultListLimit
	}
	return &MessagesHandler{
		store:     store,
		bridge:    processor,
		turnCache: turnCache,
		pageLimit: pageLimit,
	}
}

// GetMessages handles GET /chat/workflows/{workflowId}/messages
// @Summary Get messages
// @Description Returns the most recent visible messages of the caller's conversation for a workflow, oldest first
// @Tags Chat
// @Produce json
// @Param workflowId path string true "Workflow ID"
// @Param limit query int false "Maximum number of messages" default(50) minimum(1) maximum(200)
// @Success 200 {object} dto.GetMessagesResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/chat/workflows/{workflowId}/messages [get]
func (h *MessagesHandler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	workflowID := c.Param("workflowId")

	var query dto.GetMessagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid query parameters", err.Error()))
		return
	}
	if query.Limit == 0 {
		query.Limit = h.pageLimit
	}

	resp := dto.GetMessagesResponse{
		WorkflowID: workflowID,
		Messages:   []models.Message{},
		Limit:      query.Limit,
	}

	conv, err := h.store.FindConversation(ctx, userID, workflowID)
	if err != nil {
		middleware.HandleError(c, domainerrors.NewInternalError("failed to find conversation", err))
		return
	}
	if conv != nil {
		msgs, err := h.store.ListVisibleMessages(ctx, conv.ID, query.Limit)
		if err != nil {
			middleware.HandleError(c, domainerrors.NewInternalError("failed to list messages", err))
			return
		}
		resp.ConversationID = conv.ID
		if msgs != nil {
			resp.Messages = msgs
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ClearMessages handles DELETE /chat/workflows/{workflowId}/messages
// @Summary Clear messages
// @Description Deletes every message of the caller's conversation for a workflow. Clearing a missing conversation succeeds.
// @Tags Chat
// @Produce json
// @Param workflowId path string true "Workflow ID"
// @Success 200 {object} dto.ClearMessagesResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/chat/workflows/{workflowId}/messages [delete]
func (h *MessagesHandler) ClearMessages(c *gin.Context) {
	userID := middleware.GetUserID(c)
	workflowID := c.Param("workflowId")

	if err := h.store.ClearConversation(c.Request.Context(), userID, workflowID); err != nil {
		middleware.HandleError(c, domainerrors.NewInternalError("failed to clear conversation", err))
		return
	}
	logger := middleware.GetRequestLogger(c)
	if h.turnCache != nil {
		if err := h.turnCache.PurgeUser(c.Request.Context(), userID); err != nil {
			logger.Warn().Err(err).Str("user_id", userID).Msg("failed to purge cached turns")
		}
	}

	logger.Info().
		Str("user_id", userID).
		Str("workflow_id", workflowID).
		Msg("conversation cleared")
	c.JSON(http.StatusOK, dto.ClearMessagesResponse{WorkflowID: workflowID, Cleared: true})
}

// StreamChat handles POST /chat/stream
// @Summary Stream a chat turn
// @Description Runs one chat turn and streams token, complete, message_saved, rate_limit_exceeded, turn_result and error events over SSE
// @Tags Chat
// @Accept json
// @Produce text/event-stream
// @Param request body dto.ChatStreamRequest true "Chat message"
// @Success 200 {string} string "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/chat/stream [post]
func (h *MessagesHandler) StreamChat(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	logger := middleware.GetRequestLogger(c)

	var req dto.ChatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid request body", err.Error()))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid request body", "content is required"))
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("X-Idempotency-Key")
	}

	writer, err := sse.NewWriter(c.Writer)
	if err != nil {
		middleware.HandleError(c, domainerrors.NewInternalError("streaming not supported", err))
		return
	}

	if req.IdempotencyKey != "" && h.turnCache != nil {
		turn, err := h.turnCache.Get(ctx, userID, req.IdempotencyKey)
		if err != nil {
			logger.Warn().Err(err).Msg("turn cache lookup failed")
		}
		if turn != nil {
			_ = writer.WriteTurnResult(turn)
			_ = writer.WriteDone()
			return
		}
	}

	_, err = h.bridge.ProcessTurn(ctx, &bridge.TurnRequest{
		UserID:         userID,
		WorkflowID:     req.WorkflowID,
		Content:        req.Content,
		Model:          req.Model,
		Attachments:    req.Attachments,
		IdempotencyKey: req.IdempotencyKey,
	}, sse.Emitter{W: writer})
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug().Err(err).Msg("client left during chat stream")
			return
		}
		logger.Error().Err(err).Str("user_id", userID).Msg("chat turn failed")
		code := domainerrors.ErrCodeInternal
		if errors.Is(err, bridge.ErrEmptyContent) {
			code = domainerrors.ErrCodeValidation
		}
		_ = writer.WriteError(code, "Failed to process message", "")
	}
	_ = writer.WriteDone()
}
