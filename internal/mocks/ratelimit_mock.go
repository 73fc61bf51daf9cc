package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/services/ratelimit"
)

// MockLedger is a mock implementation of ratelimit.Ledger.
type MockLedger struct {
	mock.Mock
}

// PlanType returns the plan of a user.
func (m *MockLedger) PlanType(ctx context.Context, userID string) (models.PlanType, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.PlanType), args.Error(1)
}

// PlanConfig returns the limits of a plan.
func (m *MockLedger) PlanConfig(ctx context.Context, plan models.PlanType) (*models.PlanConfig, error) {
	args := m.Called(ctx, plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlanConfig), args.Error(1)
}

// Usage returns the usage row of a user.
func (m *MockLedger) Usage(ctx context.Context, userID string) (*models.UsageRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UsageRecord), args.Error(1)
}

// IncrementFree counts one free interaction.
func (m *MockLedger) IncrementFree(ctx context.Context, userID string, tokens int, now time.Time, window time.Duration) error {
	args := m.Called(ctx, userID, tokens, now, window)
	return args.Error(0)
}

// IncrementPaid adds paid credits.
func (m *MockLedger) IncrementPaid(ctx context.Context, userID string, credits, tokens int, now time.Time) error {
	args := m.Called(ctx, userID, credits, tokens, now)
	return args.Error(0)
}

// MockLimiter is a mock implementation of ratelimit.Limiter.
type MockLimiter struct {
	mock.Mock
}

// CheckLimits decides whether a user may spend credits.
func (m *MockLimiter) CheckLimits(ctx context.Context, userID string, estimatedCost int) (*ratelimit.Decision, error) {
	args := m.Called(ctx, userID, estimatedCost)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ratelimit.Decision), args.Error(1)
}

// RecordUsage records usage.
func (m *MockLimiter) RecordUsage(ctx context.Context, userID string, usage ratelimit.Usage) {
	m.Called(ctx, userID, usage)
}
