// Package bridge runs one user chat turn: rate check, history, optional
// workflow tool call, streamed completion, persistence and usage.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/pkg/tokens"
	"github.com/myworkflows/chat-service/internal/services/completion"
	"github.com/myworkflows/chat-service/internal/services/conversation"
	"github.com/myworkflows/chat-service/internal/services/ratelimit"
	"github.com/myworkflows/chat-service/internal/services/tools"
	"github.com/myworkflows/chat-service/internal/services/turncache"
)

const (
	// DefaultHistoryWindow is the number of prior messages sent upstream.
	DefaultHistoryWindow = 10

	// DefaultGeneralWorkflowID names the conversation used when no workflow is bound.
	DefaultGeneralWorkflowID = "general"

	fallbackNoAPIKey = "no_api_key"
)

// ErrEmptyContent is returned for a chat turn without text.
var ErrEmptyContent = errors.New("message content is required")

// Emitter receives the events of one turn in order.
type Emitter interface {
	Token(content string) error
	Complete() error
	MessageSaved(msg *models.Message) error
	RateLimited(notice *models.RateLimitNotice) error
}

// TurnRequest is one inbound chat message.
type TurnRequest struct {
	UserID         string
	WorkflowID     string
	ConversationID string // optional; resolved from UserID and WorkflowID when empty
	Content        string
	Model          string
	Attachments    []models.Attachment
	IdempotencyKey string
}

// Processor runs chat turns.
type Processor interface {
	ProcessTurn(ctx context.Context, req *TurnRequest, em Emitter) (*models.TurnResult, error)
}

// Config holds the collaborators of a Bridge.
type Config struct {
	Store             conversation.Store
	Limiter           ratelimit.Limiter
	Invoker           tools.Invoker       // optional
	Streamer          completion.Streamer // nil uses the local echo
	TurnCache         turncache.Service   // optional
	Predicate         ToolPredicate       // nil uses DefaultToolPredicate
	HistoryWindow     int
	DefaultModel      string
	UpgradeURL        string
	GeneralWorkflowID string
	Logger            *zerolog.Logger
}

// Bridge implements Processor.
type Bridge struct {
	store      conversation.Store
	limiter    ratelimit.Limiter
	invoker    tools.Invoker
	streamer   completion.Streamer
	turnCache  turncache.Service
	predicate  ToolPredicate
	history    int
	model      string
	upgradeURL string
	generalID  string
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a Bridge.
func New(cfg Config) (*Bridge, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}

	b := &Bridge{
		store:      cfg.Store,
		limiter:    cfg.Limiter,
		invoker:    cfg.Invoker,
		streamer:   cfg.Streamer,
		turnCache:  cfg.TurnCache,
		predicate:  cfg.Predicate,
		history:    cfg.HistoryWindow,
		model:      cfg.DefaultModel,
		upgradeURL: cfg.UpgradeURL,
		generalID:  cfg.GeneralWorkflowID,
		logger:     log.Logger,
		now:        time.Now,
	}
	if b.predicate == nil {
		b.predicate = DefaultToolPredicate
	}
	if b.history <= 0 {
		b.history = DefaultHistoryWindow
	}
	if b.model == "" {
		b.model = tokens.DefaultModel
	}
	if b.generalID == "" {
		b.generalID = DefaultGeneralWorkflowID
	}
	if cfg.Logger != nil {
		b.logger = *cfg.Logger
	}
	return b, nil
}

// ProcessTurn runs one turn. A rate-limited turn emits RateLimited and
// returns nil, nil. Any returned error is terminal for the turn.
func (b *Bridge) ProcessTurn(ctx context.Context, req *TurnRequest, em Emitter) (*models.TurnResult, error) {
	if req == nil || strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = b.model
	}
	workflowID := req.WorkflowID
	if workflowID == "" {
		workflowID = b.generalID
	}
	logger := b.logger.With().
		Str("user_id", req.UserID).
		Str("workflow_id", workflowID).
		Str("model", model).
		Logger()

	// RATE_CHECK
	decision, err := b.limiter.CheckLimits(ctx, req.UserID, tokens.EstimateCredits(model, req.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to check limits: %w", err)
	}
	if !decision.Allowed {
		logger.Info().Str("reason", decision.Reason).Msg("turn rate limited")
		notice := &models.RateLimitNotice{
			Reason:           decision.Reason,
			ResetAt:          decision.ResetAt,
			RemainingCredits: decision.RemainingCredits,
			UpgradeURL:       b.upgradeURL,
		}
		return nil, em.RateLimited(notice)
	}

	// HISTORY_LOAD
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID, err = b.store.GetOrCreateConversation(ctx, req.UserID, workflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve conversation: %w", err)
		}
	}
	history, err := b.store.ListVisibleMessages(ctx, conversationID, b.history)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	userMeta := map[string]interface{}{models.MetaModel: model}
	if len(req.Attachments) > 0 {
		userMeta[models.MetaAttachments] = req.Attachments
	}
	if req.IdempotencyKey != "" {
		userMeta[models.MetaIdempotencyKey] = req.IdempotencyKey
	}
	userMsg, err := b.store.AppendMessage(ctx, conversationID, models.RoleUser, req.Content, userMeta)
	if err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}
	if err := em.MessageSaved(userMsg); err != nil {
		return nil, err
	}
	if err := b.store.SetTitleIfEmpty(ctx, conversationID, conversation.TitleFrom(req.Content)); err != nil {
		logger.Warn().Err(err).Msg("failed to set conversation title")
	}

	// TOOL_DECISION / TOOL_EXEC
	userText := req.Content
	if b.shouldUseTool(workflowID, req.Content) {
		userText += b.runTool(ctx, logger, conversationID, userMsg, req.UserID, workflowID)
	}

	// COMPLETION_CALL / STREAM_RELAY
	var defs []tools.Definition
	if b.invoker != nil && b.invoker.Connected() {
		defs = b.invoker.Definitions()
	}
	upstream := &completion.Request{
		Model:    model,
		Messages: buildMessages(systemPrompt(defs, b.promptWorkflow(workflowID)), history, userText),
	}

	started := b.now()
	output, fallbackReason, err := b.stream(ctx, logger, upstream, req.Content, em)
	if err != nil {
		return nil, err
	}
	latency := b.now().Sub(started)
	if err := em.Complete(); err != nil {
		return nil, err
	}

	// PERSIST
	// The completion has been delivered; finish bookkeeping even if the client left.
	persistCtx := context.WithoutCancel(ctx)
	tokensIn := tokens.Estimate(req.Content)
	tokensOut := tokens.Estimate(output)
	credits := tokens.Credits(model, tokensIn, tokensOut)

	assistantMeta := map[string]interface{}{
		models.MetaModel:        model,
		models.MetaLatencyMs:    latency.Milliseconds(),
		models.MetaTokensInput:  tokensIn,
		models.MetaTokensOutput: tokensOut,
		models.MetaCreditsUsed:  credits,
		models.MetaFallback:     fallbackReason != "",
	}
	if fallbackReason != "" {
		assistantMeta[models.MetaFallbackReason] = fallbackReason
	}
	if output == "" {
		logger.Warn().Msg("completion produced no output")
	}
	assistantMsg, err := b.store.AppendMessage(persistCtx, conversationID, models.RoleAssistant, output, assistantMeta)
	if err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}
	if err := em.MessageSaved(assistantMsg); err != nil {
		logger.Debug().Err(err).Msg("client gone before assistant message_saved")
	}

	// USAGE_RECORD
	b.limiter.RecordUsage(persistCtx, req.UserID, ratelimit.Usage{
		CreditsUsed: credits,
		TokensUsed:  tokensIn + tokensOut,
		Model:       model,
		Action:      ratelimit.ActionChat,
		Metadata: map[string]interface{}{
			"conversationId": conversationID,
			"workflowId":     workflowID,
			"messageId":      assistantMsg.ID,
			"fallback":       fallbackReason != "",
		},
	})

	result := &models.TurnResult{
		IdempotencyKey:   req.IdempotencyKey,
		UserID:           req.UserID,
		WorkflowID:       workflowID,
		ConversationID:   conversationID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		CreditsUsed:      credits,
		Fallback:         fallbackReason != "",
		CompletedAt:      b.now().UTC(),
	}

	// TURN_CACHE
	if req.IdempotencyKey != "" && b.turnCache != nil {
		if err := b.turnCache.Set(persistCtx, result); err != nil {
			logger.Warn().Err(err).Msg("failed to cache turn result")
		}
	}

	logger.Info().
		Str("conversation_id", conversationID).
		Int("credits", credits).
		Int64("latency_ms", latency.Milliseconds()).
		Bool("fallback", fallbackReason != "").
		Msg("turn completed")
	return result, nil
}

func (b *Bridge) shouldUseTool(workflowID, text string) bool {
	if b.invoker == nil || !b.invoker.Connected() {
		return false
	}
	if workflowID == "" || workflowID == b.generalID {
		return false
	}
	return b.predicate(text)
}

func (b *Bridge) promptWorkflow(workflowID string) string {
	if workflowID == b.generalID {
		return ""
	}
	return workflowID
}

// runTool executes the workflow tool and returns the context block to append
// to the user text. Failures degrade into a "Tool error" block.
func (b *Bridge) runTool(ctx context.Context, logger zerolog.Logger, conversationID string, userMsg *models.Message, userID, workflowID string) string {
	args := map[string]string{"workflowId": workflowID, "userId": userID}
	res, err := b.invoker.Invoke(ctx, tools.WorkflowDetailsTool, args)

	var body string
	toolMeta := map[string]interface{}{
		models.MetaToolName: tools.WorkflowDetailsTool,
		models.MetaToolArgs: map[string]interface{}{"workflowId": workflowID},
	}
	patch := map[string]interface{}{
		models.MetaToolUsed: true,
		models.MetaToolName: tools.WorkflowDetailsTool,
	}
	if err != nil {
		msg := tools.Message(err)
		logger.Warn().Err(err).Msg("workflow tool failed")
		body = "Tool error: " + msg
		toolMeta[models.MetaToolError] = msg
		patch[models.MetaToolError] = msg
	} else {
		body = res.Content()
	}

	if _, err := b.store.AppendMessage(ctx, conversationID, models.RoleTool, body, toolMeta); err != nil {
		logger.Warn().Err(err).Msg("failed to save tool message")
	}
	if err := b.store.UpdateMessageMetadata(ctx, userMsg.ID, patch); err != nil {
		logger.Warn().Err(err).Msg("failed to tag user message with tool usage")
	} else {
		if userMsg.Metadata == nil {
			userMsg.Metadata = map[string]interface{}{}
		}
		for k, v := range patch {
			userMsg.Metadata[k] = v
		}
	}
	return contextBlock(body)
}

// stream relays the completion. Upstream rejections before the first token
// fall back to the local echo; the returned reason is empty otherwise.
func (b *Bridge) stream(ctx context.Context, logger zerolog.Logger, req *completion.Request, original string, em Emitter) (string, string, error) {
	if b.streamer == nil {
		out, err := b.echo(ctx, original, em)
		return out, fallbackNoAPIKey, err
	}

	out, err := b.streamer.Stream(ctx, req, em.Token)
	if err == nil {
		return out, "", nil
	}

	var upstream *completion.UpstreamError
	if errors.As(err, &upstream) {
		logger.Error().
			Int("status", upstream.StatusCode).
			Str("code", upstream.Code).
			Str("upstream_message", upstream.Message).
			Msg("completion upstream rejected request, using local echo")
		out, err := b.echo(ctx, original, em)
		return out, upstream.Code, err
	}
	return "", "", fmt.Errorf("completion stream failed: %w", err)
}

func (b *Bridge) echo(ctx context.Context, text string, em Emitter) (string, error) {
	req := &completion.Request{Messages: []completion.Message{{Role: string(models.RoleUser), Content: text}}}
	out, err := completion.Echo{}.Stream(ctx, req, em.Token)
	if err != nil {
		return "", fmt.Errorf("local echo failed: %w", err)
	}
	return out, nil
}
