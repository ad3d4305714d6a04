// Package mocks provides a testify mock of llm.Client for unit tests.
package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"aura-assist/engine/internal/llm"
	"aura-assist/engine/internal/model"
)

type MockClient struct {
	mock.Mock
}

// NewMockClient creates a mock wired to the test lifecycle: expectations are
// asserted automatically during cleanup.
func NewMockClient(t *testing.T) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockClient) StreamCompletion(ctx context.Context, req *llm.CompletionRequest, ch chan<- model.StreamChunk) error {
	return m.Called(ctx, req, ch).Error(0)
}
