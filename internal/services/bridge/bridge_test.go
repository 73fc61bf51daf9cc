package bridge_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/mocks"
	"github.com/myworkflows/chat-service/internal/services/bridge"
	"github.com/myworkflows/chat-service/internal/services/completion"
	"github.com/myworkflows/chat-service/internal/services/conversation"
	"github.com/myworkflows/chat-service/internal/services/ratelimit"
	"github.com/myworkflows/chat-service/internal/services/tools"
	"github.com/myworkflows/chat-service/internal/testutils"
)

type event struct {
	kind    string
	content string
	message *models.Message
	notice  *models.RateLimitNotice
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) add(e event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Token(content string) error { return r.add(event{kind: "token", content: content}) }
func (r *recorder) Complete() error            { return r.add(event{kind: "complete"}) }
func (r *recorder) MessageSaved(m *models.Message) error {
	return r.add(event{kind: "message_saved", message: m})
}
func (r *recorder) RateLimited(n *models.RateLimitNotice) error {
	return r.add(event{kind: "rate_limit_exceeded", notice: n})
}

func (r *recorder) kinds() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		if len(out) > 0 && e.kind == "token" && out[len(out)-1] == "token" {
			continue
		}
		out = append(out, e.kind)
	}
	return out
}

func (r *recorder) streamed() string {
	var b strings.Builder
	for _, e := range r.events {
		if e.kind == "token" {
			b.WriteString(e.content)
		}
	}
	return b.String()
}

type fakeStreamer struct {
	tokens []string
	err    error
	got    *completion.Request
}

func (f *fakeStreamer) Stream(ctx context.Context, req *completion.Request, onToken func(string) error) (string, error) {
	f.got = req
	var b strings.Builder
	for _, t := range f.tokens {
		b.WriteString(t)
		if err := onToken(t); err != nil {
			return b.String(), err
		}
	}
	return b.String(), f.err
}

func (f *fakeStreamer) lastUserText() string {
	return f.got.Messages[len(f.got.Messages)-1].Content
}

type harness struct {
	store    *conversation.GormStore
	limiter  *mocks.MockLimiter
	invoker  *mocks.MockInvoker
	streamer *fakeStreamer
	cache    *mocks.MockTurnCache
}

func allow() *ratelimit.Decision {
	return &ratelimit.Decision{Allowed: true, RemainingCredits: 100, PlanType: models.PlanPro}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := conversation.NewGormStore(testutils.NewTestDB(t))
	require.NoError(t, err)
	return &harness{
		store:    store,
		limiter:  &mocks.MockLimiter{},
		invoker:  &mocks.MockInvoker{},
		streamer: &fakeStreamer{tokens: []string{"Hel", "lo", "!"}},
		cache:    &mocks.MockTurnCache{},
	}
}

func (h *harness) bridge(t *testing.T, mutate ...func(*bridge.Config)) *bridge.Bridge {
	t.Helper()
	cfg := bridge.Config{
		Store:      h.store,
		Limiter:    h.limiter,
		Invoker:    h.invoker,
		Streamer:   h.streamer,
		TurnCache:  h.cache,
		UpgradeURL: "/pricing",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	b, err := bridge.New(cfg)
	require.NoError(t, err)
	return b
}

func (h *harness) disconnected() {
	h.invoker.On("Connected").Return(false)
}

func TestNew_Validation(t *testing.T) {
	_, err := bridge.New(bridge.Config{Limiter: &mocks.MockLimiter{}})
	assert.Error(t, err)

	store, err := conversation.NewGormStore(testutils.NewTestDB(t))
	require.NoError(t, err)
	_, err = bridge.New(bridge.Config{Store: store})
	assert.Error(t, err)
}

func TestProcessTurn_StreamedTokensMatchSavedMessage(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.disconnected()
	h.limiter.On("CheckLimits", mock.Anything, "user-1", mock.AnythingOfType("int")).Return(allow(), nil)
	h.limiter.On("RecordUsage", mock.Anything, "user-1", mock.MatchedBy(func(u ratelimit.Usage) bool {
		return u.CreditsUsed >= 1 && u.Model == "openai/gpt-4o" && u.Action == ratelimit.ActionChat
	})).Return()
	b := h.bridge(t)
	rec := &recorder{}

	// Act
	result, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{
		UserID: "user-1", WorkflowID: "wf-1", Content: "hello there", Model: "openai/gpt-4o",
	}, rec)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, []string{"message_saved", "token", "complete", "message_saved"}, rec.kinds())
	assert.Equal(t, "Hello!", rec.streamed())
	assert.Equal(t, rec.streamed(), result.AssistantMessage.Content)
	assert.Equal(t, models.RoleUser, rec.events[0].message.Role)
	assert.Equal(t, models.RoleAssistant, rec.events[len(rec.events)-1].message.Role)
	assert.Equal(t, false, result.AssistantMessage.Metadata[models.MetaFallback])
	assert.Equal(t, "openai/gpt-4o", result.AssistantMessage.Metadata[models.MetaModel])

	stored, err := h.store.ListMessages(context.Background(), result.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "hello there", stored[0].Content)
	assert.Equal(t, "Hello!", stored[1].Content)
	h.limiter.AssertExpectations(t)
	h.cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything)
}

func TestProcessTurn_RateLimitedPersistsNothing(t *testing.T) {
	// Arrange
	h := newHarness(t)
	resetAt := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	h.limiter.On("CheckLimits", mock.Anything, "user-1", mock.Anything).Return(&ratelimit.Decision{
		Reason: models.ReasonDailyLimitReached, ResetAt: &resetAt, RemainingCredits: 0,
	}, nil)
	b := h.bridge(t)
	rec := &recorder{}

	// Act
	result, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{UserID: "user-1", WorkflowID: "wf-1", Content: "hi"}, rec)

	// Assert
	require.NoError(t, err)
	assert.Nil(t, result)
	require.Equal(t, []string{"rate_limit_exceeded"}, rec.kinds())
	notice := rec.events[0].notice
	assert.Equal(t, models.ReasonDailyLimitReached, notice.Reason)
	assert.Equal(t, "/pricing", notice.UpgradeURL)
	assert.True(t, notice.ResetAt.Equal(resetAt))
	assert.Nil(t, h.streamer.got)
	conv, err := h.store.FindConversation(context.Background(), "user-1", "wf-1")
	require.NoError(t, err)
	assert.Nil(t, conv)
	h.limiter.AssertNotCalled(t, "RecordUsage", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessTurn_LimiterErrorIsTerminal(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.limiter.On("CheckLimits", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
	b := h.bridge(t)
	rec := &recorder{}

	// Act
	_, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{UserID: "u", Content: "hi"}, rec)

	// Assert
	assert.Error(t, err)
	assert.Empty(t, rec.events)
}

func TestProcessTurn_EmptyContent(t *testing.T) {
	h := newHarness(t)
	b := h.bridge(t)

	_, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{UserID: "u", Content: "   "}, &recorder{})

	assert.ErrorIs(t, err, bridge.ErrEmptyContent)
}

func TestProcessTurn_ToolFailureDegradesTurn(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.invoker.On("Connected").Return(true)
	h.invoker.On("Definitions").Return([]tools.Definition{{Name: tools.WorkflowDetailsTool, Description: "Fetch a workflow."}})
	h.invoker.On("Invoke", mock.Anything, tools.WorkflowDetailsTool, map[string]string{"workflowId": "wf-1", "userId": "user-1"}).
		Return(nil, &tools.ToolError{Code: tools.CodeNoConnection, Message: "No active n8n connection found."})
	h.limiter.On("CheckLimits", mock.Anything, mock.Anything, mock.Anything).Return(allow(), nil)
	h.limiter.On("RecordUsage", mock.Anything, mock.Anything, mock.Anything).Return()
	b := h.bridge(t)
	rec := &recorder{}

	// Act
	result, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{
		UserID: "user-1", WorkflowID: "wf-1", Content: "Why does my webhook node fail?",
	}, rec)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result)
	sent := h.streamer.lastUserText()
	assert.True(t, strings.HasPrefix(sent, "Why does my webhook node fail?"))
	assert.Contains(t, sent, bridge.ContextStart+"\nTool error: No active n8n connection found.\n"+bridge.ContextEnd)
	system := h.streamer.got.Messages[0].Content
	assert.Contains(t, system, tools.WorkflowDetailsTool)
	assert.Contains(t, system, "The server runs these tools for you")
	assert.NotContains(t, system, "TOOL_CALL")

	all, err := h.store.ListMessages(context.Background(), result.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, models.RoleTool, all[1].Role)
	assert.Equal(t, "No active n8n connection found.", all[1].Metadata[models.MetaToolError])
	assert.Equal(t, true, all[0].Metadata[models.MetaToolUsed])
	assert.Equal(t, "No active n8n connection found.", all[0].Metadata[models.MetaToolError])
	assert.Equal(t, "Why does my webhook node fail?", all[0].Content)

	visible, err := h.store.ListVisibleMessages(context.Background(), result.ConversationID, 0)
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}

func TestProcessTurn_ToolSuccessAugmentsPrompt(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.invoker.On("Connected").Return(true)
	h.invoker.On("Definitions").Return([]tools.Definition{{Name: tools.WorkflowDetailsTool}})
	h.invoker.On("Invoke", mock.Anything, tools.WorkflowDetailsTool, mock.Anything).
		Return(&tools.Result{Tool: tools.WorkflowDetailsTool, Summary: "Workflow: Leads (ID: 7)"}, nil)
	h.limiter.On("CheckLimits", mock.Anything, mock.Anything, mock.Anything).Return(allow(), nil)
	var recorded ratelimit.Usage
	h.limiter.On("RecordUsage", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		recorded = args.Get(2).(ratelimit.Usage)
	}).Return()
	b := h.bridge(t)

	// Act
	result, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{
		UserID: "user-1", WorkflowID: "wf-1", Content: "list my triggers",
	}, &recorder{})

	// Assert
	require.NoError(t, err)
	assert.Contains(t, h.streamer.lastUserText(), "Workflow: Leads (ID: 7)")
	assert.Equal(t, true, result.UserMessage.Metadata[models.MetaToolUsed])
	assert.Equal(t, result.CreditsUsed, recorded.CreditsUsed)
	assert.Equal(t, result.AssistantMessage.ID, recorded.Metadata["messageId"])
}

func TestProcessTurn_ToolSkipped(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		workflowID string
		content    string
	}{
		{name: "general workflow", connected: true, workflowID: "", content: "explain this workflow"},
		{name: "no keyword", connected: true, workflowID: "wf-1", content: "tell me a joke"},
		{name: "not connected", connected: false, workflowID: "wf-1", content: "explain this workflow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			h := newHarness(t)
			h.invoker.On("Connected").Return(tt.connected)
			h.invoker.On("Definitions").Return([]tools.Definition{})
			h.limiter.On("CheckLimits", mock.Anything, mock.Anything, mock.Anything).Return(allow(), nil)
			h.limiter.On("RecordUsage", mock.Anything, mock.Anything, mock.Anything).Return()
			b := h.bridge(t)

			// Act
			result, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{
				UserID: "user-1", WorkflowID: tt.workflowID, Content: tt.content,
			}, &recorder{})

			// Assert
			require.NoError(t, err)
			h.invoker.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, tt.content, h.streamer.lastUserText())
			if tt.workflowID == "" {
				assert.Equal(t, bridge.DefaultGeneralWorkflowID, result.WorkflowID)
			}
		})
	}
}

func TestProcessTurn_HistoryWindowSentUpstream(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.disconnected()
	h.limiter.On("CheckLimits", mock.Anything, mock.Anything, mock.Anything).Return(allow(), nil)
	h.limiter.On("RecordUsage", mock.Anything, mock.Anything, mock.Anything).Return()
	ctx := context.Background()
	convID, err := h.store.GetOrCreateConversation(ctx, "user-1", "wf-1")
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		_, err := h.store.AppendMessage(ctx, convID, role, string(rune('a'+i)), nil)
		require.NoError(t, err)
	}
	_, err = h.store.AppendMessage(ctx, convID, models.RoleTool, "tool output", nil)
	require.NoError(t, err)
	b := h.bridge(t, func(c *bridge.Config) { c.HistoryWindow = 4 })

	// Act
	_, err = b.ProcessTurn(ctx, &bridge.TurnRequest{UserID: "user-1", WorkflowID: "wf-1", ConversationID: convID, Content: "next"}, &recorder{})

	// Assert
	require.NoError(t, err)
	msgs := h.streamer.got.Messages
	require.Len(t, msgs, 6)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, []string{"i", "j", "k", "l"}, []string{msgs[1].Content, msgs[2].Content, msgs[3].Content, msgs[4].Content})
	assert.Equal(t, "next", msgs[5].Content)
}

func TestProcessTurn_UpstreamRejectionFallsBackToEcho(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.disconnected()
	h.streamer.tokens = nil
	h.streamer.err = &completion.UpstreamError{StatusCode: 402, Code: completion.CodeInsufficientBalance, Message: "no credits"}
	h.limiter.On("CheckLimits", mock.Anything, mock.Anything, mock.Anything).Return(allow(), nil)
	h.limiter.On("RecordUsage", mock.Anything, mock.Anything, mock.Anything).Return()
	b := h.bridge(t)
	rec := &recorder{}

	// Act
	result, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{UserID: "u", WorkflowID: "wf", Content: "ping"}, rec)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, completion.EchoText("ping"), result.AssistantMessage.Content)
	assert.Equal(t, rec.streamed(), result.AssistantMessage.Content)
	assert.True(t, result.Fallback)
	assert.Equal(t, completion.CodeInsufficientBalance, result.AssistantMessage.Metadata[models.MetaFallbackReason])
}

func TestProcessTurn_NoStreamerUsesEcho(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.disconnected()
	h.limiter.On("CheckLimits", mock.Anything, mock.Anything, mock.Anything).Return(allow(), nil)
	h.limiter.On("RecordUsage", mock.Anything, mock.Anything, mock.Anything).Return()
	b := h.bridge(t, func(c *bridge.Config) { c.Streamer = nil })

	// Act
	result, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{UserID: "u", Content: "offline?"}, &recorder{})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, completion.EchoText("offline?"), result.AssistantMessage.Content)
	assert.True(t, result.Fallback)
}

func TestProcessTurn_MidStreamFailureIsTerminal(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.disconnected()
	h.streamer.tokens = []string{"partial"}
	h.streamer.err = errors.New("connection reset by peer")
	h.limiter.On("CheckLimits", mock.Anything, mock.Anything, mock.Anything).Return(allow(), nil)
	b := h.bridge(t)
	rec := &recorder{}

	// Act
	result, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{UserID: "u", WorkflowID: "wf", Content: "hi"}, rec)

	// Assert
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, []string{"message_saved", "token"}, rec.kinds())
	conv, err := h.store.FindConversation(context.Background(), "u", "wf")
	require.NoError(t, err)
	msgs, err := h.store.ListMessages(context.Background(), conv.ID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	h.limiter.AssertNotCalled(t, "RecordUsage", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessTurn_EmptyOutputIsPersisted(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.disconnected()
	h.streamer.tokens = nil
	h.limiter.On("CheckLimits", mock.Anything, mock.Anything, mock.Anything).Return(allow(), nil)
	h.limiter.On("RecordUsage", mock.Anything, mock.Anything, mock.Anything).Return()
	b := h.bridge(t)
	rec := &recorder{}

	// Act
	result, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{UserID: "u", WorkflowID: "wf", Content: "hi"}, rec)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "", result.AssistantMessage.Content)
	assert.Equal(t, []string{"message_saved", "complete", "message_saved"}, rec.kinds())
	assert.Equal(t, 1, result.CreditsUsed)
}

func TestProcessTurn_CachesTurnWithIdempotencyKey(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.disconnected()
	h.limiter.On("CheckLimits", mock.Anything, mock.Anything, mock.Anything).Return(allow(), nil)
	h.limiter.On("RecordUsage", mock.Anything, mock.Anything, mock.Anything).Return()
	h.cache.On("Set", mock.Anything, mock.MatchedBy(func(turn *models.TurnResult) bool {
		return turn.IdempotencyKey == "key-1" && turn.UserID == "u" && turn.AssistantMessage.Content == "Hello!"
	})).Return(nil)
	b := h.bridge(t)

	// Act
	result, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{UserID: "u", Content: "hi", IdempotencyKey: "key-1"}, &recorder{})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "key-1", result.UserMessage.Metadata[models.MetaIdempotencyKey])
	h.cache.AssertExpectations(t)
}

type failingStore struct {
	*conversation.GormStore
}

func (f failingStore) AppendMessage(ctx context.Context, conversationID string, role models.MessageRole, content string, metadata map[string]interface{}, opts ...conversation.AppendOption) (*models.Message, error) {
	if role == models.RoleAssistant {
		return nil, errors.New("disk full")
	}
	return f.GormStore.AppendMessage(ctx, conversationID, role, content, metadata, opts...)
}

func TestProcessTurn_AssistantPersistFailureIsTerminal(t *testing.T) {
	// Arrange
	h := newHarness(t)
	h.disconnected()
	h.limiter.On("CheckLimits", mock.Anything, mock.Anything, mock.Anything).Return(allow(), nil)
	b := h.bridge(t, func(c *bridge.Config) { c.Store = failingStore{h.store} })

	// Act
	_, err := b.ProcessTurn(context.Background(), &bridge.TurnRequest{UserID: "u", Content: "hi"}, &recorder{})

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save assistant message")
	h.limiter.AssertNotCalled(t, "RecordUsage", mock.Anything, mock.Anything, mock.Anything)
}
