package queue

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sitegist/sitegist/internal/crawler"
)

// MockQueue is a mock implementation of the Queue interface for testing.
type MockQueue struct {
	mock.Mock
}

// Enqueue is the mock implementation of the Enqueue method.
func (m *MockQueue) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

// Dequeue is the mock implementation of the Dequeue method.
func (m *MockQueue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	args := m.Called(ctx)
	return args.Get(0).(crawler.QueueItem), args.Error(1)
}

// Close is the mock implementation of the Close method.
func (m *MockQueue) Close() {
	m.Called()
}
