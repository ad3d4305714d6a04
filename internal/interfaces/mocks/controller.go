// Package mocks provides a testify mock of the session controller contract.
package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"aura-assist/engine/internal/model"
)

type MockSessionController struct {
	mock.Mock
}

// NewMockSessionController creates a mock wired to the test lifecycle:
// expectations are asserted automatically during cleanup.
func NewMockSessionController(t *testing.T) *MockSessionController {
	m := &MockSessionController{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionController) Submit(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockSessionController) ResetConversation(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSessionController) MarkFeedback(ctx context.Context, index int, given bool) error {
	return m.Called(ctx, index, given).Error(0)
}

func (m *MockSessionController) FlushOnBackground(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSessionController) Snapshot() model.Snapshot {
	return m.Called().Get(0).(model.Snapshot)
}

func (m *MockSessionController) Loading() bool {
	return m.Called().Bool(0)
}

func (m *MockSessionController) Subscribe(observer func(model.Snapshot)) func() {
	args := m.Called(observer)
	if args.Get(0) == nil {
		return func() {}
	}
	return args.Get(0).(func())
}
