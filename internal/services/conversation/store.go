// Package conversation persists chat conversations and their messages.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/myworkflows/chat-service/internal/domain/models"
)

// DefaultListLimit is used when a caller passes a non-positive limit.
const DefaultListLimit = 50

// ErrMessageNotFound is returned when patching an unknown message.
var ErrMessageNotFound = errors.New("message not found")

// Store persists Conversations and Messages.
type Store interface {
	// GetOrCreateConversation returns the id of the (userID, workflowID) conversation,
	// creating it on first use. Repeated calls return the same id.
	GetOrCreateConversation(ctx context.Context, userID, workflowID string) (string, error)

	// FindConversation returns nil, nil when the pair has no conversation.
	FindConversation(ctx context.Context, userID, workflowID string) (*models.Conversation, error)

	// AppendMessage inserts a message and returns the stored row.
	AppendMessage(ctx context.Context, conversationID string, role models.MessageRole, content string, metadata map[string]interface{}, opts ...AppendOption) (*models.Message, error)

	// ListMessages returns the most recent limit messages ordered oldest-first.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	// ListVisibleMessages is ListMessages without tool messages.
	ListVisibleMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	// UpdateMessageMetadata merges patch into a message's metadata.
	UpdateMessageMetadata(ctx context.Context, messageID string, patch map[string]interface{}) error

	// ClearConversation deletes all messages of the pair's conversation.
	// The conversation row is kept. A missing conversation is not an error.
	ClearConversation(ctx context.Context, userID, workflowID string) error

	// SetTitleIfEmpty sets the conversation title unless one exists.
	SetTitleIfEmpty(ctx context.Context, conversationID, title string) error
}

// AppendOption customizes AppendMessage.
type AppendOption func(*models.Message)

// WithMessageID sets a caller-supplied message id.
func WithMessageID(id string) AppendOption {
	return func(m *models.Message) {
		if id != "" {
			m.ID = id
		}
	}
}

// GormStore implements Store on a relational database.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GormStore.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &GormStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// GetOrCreateConversation returns the existing conversation id or creates one.
// A unique index on (user_id, workflow_id) resolves concurrent first turns:
// the losing insert re-reads the winner's row.
func (s *GormStore) GetOrCreateConversation(ctx context.Context, userID, workflowID string) (string, error) {
	if userID == "" || workflowID == "" {
		return "", fmt.Errorf("userID and workflowID are required")
	}

	existing, err := s.FindConversation(ctx, userID, workflowID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if err := s.db.WithContext(ctx).
			Model(&models.Conversation{}).
			Where("id = ?", existing.ID).
			Update("updated_at", s.now()).Error; err != nil {
			return "", fmt.Errorf("failed to touch conversation: %w", err)
		}
		return existing.ID, nil
	}

	now := s.now()
	conv := &models.Conversation{
		ID:         uuid.NewString(),
		UserID:     userID,
		WorkflowID: workflowID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	createErr := s.db.WithContext(ctx).Create(conv).Error
	if createErr == nil {
		return conv.ID, nil
	}
	if !errors.Is(createErr, gorm.ErrDuplicatedKey) {
		return "", fmt.Errorf("failed to create conversation: %w", createErr)
	}

	winner, err := s.FindConversation(ctx, userID, workflowID)
	if err != nil {
		return "", fmt.Errorf("failed to re-fetch conversation after insert error %v: %w", createErr, err)
	}
	if winner == nil {
		return "", fmt.Errorf("failed to create conversation: %w", createErr)
	}
	return winner.ID, nil
}

// FindConversation looks up the conversation of a (user, workflow) pair.
func (s *GormStore) FindConversation(ctx context.Context, userID, workflowID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND workflow_id = ?", userID, workflowID).
		Take(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return &conv, nil
}

// AppendMessage inserts a message.
func (s *GormStore) AppendMessage(ctx context.Context, conversationID string, role models.MessageRole, content string, metadata map[string]interface{}, opts ...AppendOption) (*models.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversationID is required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("invalid message role %q", role)
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       datatypes.JSONMap(metadata),
		CreatedAt:      s.now(),
	}
	for _, opt := range opts {
		opt(msg)
	}

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to insert %s message: %w", role, err)
	}
	return msg, nil
}

// ListMessages returns the most recent limit messages, oldest-first.
func (s *GormStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	return s.listRecent(ctx, conversationID, limit, false)
}

// ListVisibleMessages returns the most recent limit user and assistant messages, oldest-first.
func (s *GormStore) ListVisibleMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	return s.listRecent(ctx, conversationID, limit, true)
}

func (s *GormStore) listRecent(ctx context.Context, conversationID string, limit int, visibleOnly bool) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if visibleOnly {
		q = q.Where("role <> ?", models.RoleTool)
	}

	var msgs []models.Message
	if err := q.Order("created_at DESC").Order("seq DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// UpdateMessageMetadata merges patch into the stored metadata.
func (s *GormStore) UpdateMessageMetadata(ctx context.Context, messageID string, patch map[string]interface{}) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		err := tx.Where("id = ?", messageID).Take(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load message: %w", err)
		}

		merged := datatypes.JSONMap{}
		for k, v := range msg.Metadata {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}

		if err := tx.Model(&models.Message{}).
			Where("id = ?", messageID).
			Update("metadata", merged).Error; err != nil {
			return fmt.Errorf("failed to update message metadata: %w", err)
		}
		return nil
	})
}

// ClearConversation deletes the pair's messages, keeping the conversation row.
func (s *GormStore) ClearConversation(ctx context.Context, userID, workflowID string) error {
	conv, err := s.FindConversation(ctx, userID, workflowID)
	if err != nil {
		return err
	}
	if conv == nil {
		return nil
	}
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conv.ID).
		Delete(&models.Message{}).Error; err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	return nil
}

// TitleFrom derives a short conversation title from the first user message.
func TitleFrom(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) > 60 {
		return string(runes[:57]) + "..."
	}
	return title
}

// SetTitleIfEmpty sets the conversation title unless one exists.
func (s *GormStore) SetTitleIfEmpty(ctx context.Context, conversationID, title string) error {
	if title == "" {
		return nil
	}
	if err := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ? AND (title IS NULL OR title = '')", conversationID).
		Update("title", title).Error; err != nil {
		return fmt.Errorf("failed to set conversation title: %w", err)
	}
	return nil
}
