package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/myworkflows/chat-service/internal/domain/models"
)

// MockTurnCache is a mock implementation of turncache.Service.
type MockTurnCache struct {
	mock.Mock
}

// Get fetches a cached turn.
func (m *MockTurnCache) Get(ctx context.Context, userID, idempotencyKey string) (*models.TurnResult, error) {
	args := m.Called(ctx, userID, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TurnResult), args.Error(1)
}

// Set caches a turn.
func (m *MockTurnCache) Set(ctx context.Context, turn *models.TurnResult) error {
	args := m.Called(ctx, turn)
	return args.Error(0)
}

// PurgeUser drops a user's turns.
func (m *MockTurnCache) PurgeUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
