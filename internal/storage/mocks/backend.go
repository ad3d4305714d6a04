// Package mocks provides a testify mock of storage.Backend for unit tests.
package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"aura-assist/engine/internal/storage"
)

type MockBackend struct {
	mock.Mock
}

// NewMockBackend creates a mock wired to the test lifecycle: expectations
// are asserted automatically during cleanup.
func NewMockBackend(t *testing.T) *MockBackend {
	m := &MockBackend{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockBackend) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBackend) Set(ctx context.Context, key string, value []byte) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockBackend) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockBackend) Watch(ctx context.Context) (<-chan storage.Event, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan storage.Event), args.Error(1)
}

func (m *MockBackend) Close() error {
	return m.Called().Error(0)
}
