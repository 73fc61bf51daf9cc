package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/myworkflows/chat-service/internal/services/tools"
)

// MockInvoker is a mock implementation of tools.Invoker.
type MockInvoker struct {
	mock.Mock
}

// Invoke runs a tool.
func (m *MockInvoker) Invoke(ctx context.Context, name string, args map[string]string) (*tools.Result, error) {
	a := m.Called(ctx, name, args)
	if a.Get(0) == nil {
		return nil, a.Error(1)
	}
	return a.Get(0).(*tools.Result), a.Error(1)
}

// Connected reports tool availability.
func (m *MockInvoker) Connected() bool {
	return m.Called().Bool(0)
}

// Definitions lists tools.
func (m *MockInvoker) Definitions() []tools.Definition {
	a := m.Called()
	if a.Get(0) == nil {
		return nil
	}
	return a.Get(0).([]tools.Definition)
}
