package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/services/bridge"
)

// errClosed is returned by writes after the connection has shut down.
var errClosed = errors.New("connection closed")

// connection is one authenticated socket. Writes are serialized by writeMu.
type connection struct {
	h       *Handler
	ws      *websocket.Conn
	id      string
	userID  string
	ctx     context.Context
	cancel  context.CancelFunc
	writeMu sync.Mutex
	turns   sync.WaitGroup
	logger  zerolog.Logger
}

func (c *connection) run() {
	defer c.close()

	c.ws.SetReadLimit(c.h.maxMessage)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.h.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.h.pongWait))
	})

	if err := c.send(Event{Type: EventConnected, Content: connectedGreeting}); err != nil {
		c.logger.Warn().Err(err).Msg("failed to send connected event")
		return
	}

	go c.pingLoop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logClose(err)
			return
		}
		c.dispatch(data)
	}
}

func (c *connection) close() {
	c.h.sessions.Remove(c.id)
	c.cancel()
	_ = c.ws.Close()
	c.turns.Wait()
	c.logger.Info().Int("open_sessions", c.h.sessions.Count()).Msg("websocket closed")
}

func (c *connection) logClose(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Debug().Err(err).Msg("websocket closed by client")
		return
	}
	c.logger.Warn().Err(err).Msg("websocket read failed")
}

func (c *connection) pingLoop() {
	ticker := time.NewTicker(c.h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.h.writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (c *connection) send(ev Event) error {
	if c.ctx.Err() != nil {
		return errClosed
	}
	ev.SessionID = c.id
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.h.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(ev)
}

func (c *connection) sendError(msg string) {
	if err := c.send(errorEvent(msg)); err != nil {
		c.logger.Debug().Err(err).Str("error_event", msg).Msg("failed to send error event")
	}
}

func (c *connection) dispatch(data []byte) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(errInvalidFormat)
		return
	}

	if c.h.throttle != nil && !c.h.throttle.Allow(c.ctx, c.userID) {
		c.logger.Warn().Str("type", msg.Type).Msg("inbound message throttled")
		c.sendError(errThrottled)
		return
	}

	switch msg.Type {
	case TypeChat:
		c.handleChat(&msg)
	case TypeGetHistory:
		c.handleGetHistory(&msg)
	case TypeClearChat:
		c.handleClearChat(&msg)
	case TypeGetTurn:
		c.handleGetTurn(&msg)
	default:
		c.sendError(fmt.Sprintf(errUnknownType, msg.Type))
	}
}

func (c *connection) handleChat(msg *Inbound) {
	if strings.TrimSpace(msg.Content) == "" {
		c.sendError(errEmptyContent)
		return
	}

	if msg.IdempotencyKey != "" && c.replayTurn(msg.IdempotencyKey) {
		return
	}

	var workflowID, conversationID string
	c.h.sessions.Update(c.id, func(s *models.Session) {
		wf := msg.WorkflowID
		if wf == "" {
			wf = s.BoundWorkflowID
		}
		if wf == "" {
			wf = c.h.generalID
		}
		if wf != s.BoundWorkflowID {
			s.BoundWorkflowID = wf
			s.ChatSessionID = ""
		}
		workflowID, conversationID = wf, s.ChatSessionID
	})

	req := &bridge.TurnRequest{
		UserID:         c.userID,
		WorkflowID:     workflowID,
		ConversationID: conversationID,
		Content:        msg.Content,
		Model:          msg.Model,
		Attachments:    msg.Attachments,
		IdempotencyKey: msg.IdempotencyKey,
	}

	c.turns.Add(1)
	go func() {
		defer c.turns.Done()
		c.runTurn(req)
	}()
}

func (c *connection) runTurn(req *bridge.TurnRequest) {
	logger := c.logger.With().Str("workflow_id", req.WorkflowID).Logger()

	result, err := c.h.bridge.ProcessTurn(c.ctx, req, &emitter{c: c})
	if err != nil {
		if c.ctx.Err() != nil {
			logger.Debug().Err(err).Msg("turn abandoned after disconnect")
			return
		}
		logger.Error().Err(err).Msg("chat turn failed")
		c.sendError(errTurnFailed)
		return
	}
	if result == nil {
		return
	}

	c.h.sessions.Update(c.id, func(s *models.Session) {
		if s.BoundWorkflowID == result.WorkflowID {
			s.ChatSessionID = result.ConversationID
		}
	})
}

// replayTurn sends a cached turn result. It reports whether one was found.
func (c *connection) replayTurn(key string) bool {
	if c.h.turnCache == nil {
		return false
	}
	turn, err := c.h.turnCache.Get(c.ctx, c.userID, key)
	if err != nil {
		c.logger.Warn().Err(err).Msg("turn cache lookup failed")
		return false
	}
	if turn == nil {
		return false
	}
	c.logger.Info().Str("idempotency_key", key).Msg("replaying cached turn")
	if err := c.send(Event{Type: EventTurnResult, Turn: turn}); err != nil {
		c.logger.Debug().Err(err).Msg("failed to send turn result")
	}
	return true
}

func (c *connection) workflowFor(requested string) string {
	if requested != "" {
		return requested
	}
	if s, ok := c.h.sessions.Get(c.id); ok && s.BoundWorkflowID != "" {
		return s.BoundWorkflowID
	}
	return c.h.generalID
}

func (c *connection) handleGetHistory(msg *Inbound) {
	workflowID := c.workflowFor(msg.WorkflowID)
	limit := msg.Limit
	if limit <= 0 {
		limit = c.h.historyLimit
	}

	conv, err := c.h.store.FindConversation(c.ctx, c.userID, workflowID)
	if err != nil {
		c.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("failed to find conversation")
		c.sendError(errHistoryFailed)
		return
	}
	var history []models.Message
	if conv != nil {
		history, err = c.h.store.ListVisibleMessages(c.ctx, conv.ID, limit)
		if err != nil {
			c.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("failed to list messages")
			c.sendError(errHistoryFailed)
			return
		}
	}
	if err := c.send(historyEvent(history)); err != nil {
		c.logger.Debug().Err(err).Msg("failed to send history")
	}
}

func (c *connection) handleClearChat(msg *Inbound) {
	workflowID := c.workflowFor(msg.WorkflowID)
	if err := c.h.store.ClearConversation(c.ctx, c.userID, workflowID); err != nil {
		c.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("failed to clear conversation")
		c.sendError(errClearFailed)
		return
	}
	if c.h.turnCache != nil {
		if err := c.h.turnCache.PurgeUser(c.ctx, c.userID); err != nil {
			c.logger.Warn().Err(err).Msg("failed to purge cached turns")
		}
	}
	c.logger.Info().Str("workflow_id", workflowID).Msg("conversation cleared")
	if err := c.send(Event{Type: EventChatCleared, WorkflowID: workflowID}); err != nil {
		c.logger.Debug().Err(err).Msg("failed to send chat_cleared")
	}
}

func (c *connection) handleGetTurn(msg *Inbound) {
	if msg.IdempotencyKey == "" {
		c.sendError(errTurnKeyRequired)
		return
	}
	if !c.replayTurn(msg.IdempotencyKey) {
		c.sendError(errTurnNotFound)
	}
}

// emitter relays bridge events to the socket.
type emitter struct {
	c *connection
}

func (e *emitter) Token(content string) error {
	return e.c.send(Event{Type: EventToken, Content: content})
}

func (e *emitter) Complete() error {
	return e.c.send(Event{Type: EventComplete})
}

func (e *emitter) MessageSaved(msg *models.Message) error {
	return e.c.send(Event{Type: EventMessageSaved, Message: msg})
}

func (e *emitter) RateLimited(notice *models.RateLimitNotice) error {
	return e.c.send(Event{Type: EventRateLimitExceeded, RateLimitNotice: notice})
}

var _ bridge.Emitter = (*emitter)(nil)
