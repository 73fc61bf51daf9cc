package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockPublisher is a mock implementation of queue.Publisher.
type MockPublisher struct {
	mock.Mock
}

// Publish publishes a payload.
func (m *MockPublisher) Publish(ctx context.Context, queue string, payload interface{}) error {
	args := m.Called(ctx, queue, payload)
	return args.Error(0)
}

// Close closes the publisher.
func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
