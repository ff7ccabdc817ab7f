// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitegist/sitegist/internal/crawler"
	"github.com/sitegist/sitegist/internal/queue"
	memqueue "github.com/sitegist/sitegist/internal/queue/memory"
	"github.com/sitegist/sitegist/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	q := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(
		q,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		worker.Config{},
		zap.NewNop(),
	)
	dispatch := New(q, []*worker.Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-q.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherRunStopsOnQueueClose verifies a closed, drained queue ends the run.
func TestDispatcherRunStopsOnQueueClose(t *testing.T) {
	t.Parallel()

	q := memqueue.NewQueue(1)
	w := worker.New(
		q,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		worker.Config{},
		zap.NewNop(),
	)
	dispatch := New(q, []*worker.Worker{w})

	done := make(chan struct{})
	go func() {
		dispatch.Run(context.Background())
		close(done)
	}()

	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after queue close")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	q := new(queue.MockQueue)
	q.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("boom"))
	dispatch := New(q, nil)

	err := dispatch.Enqueue(context.Background(), crawler.QueueItem{JobID: "job"})
	require.EqualError(t, err, "queue enqueue: boom")
	q.AssertExpectations(t)
}

// TestDispatcherEnqueuePassesItemThrough checks the item reaches the queue intact.
func TestDispatcherEnqueuePassesItemThrough(t *testing.T) {
	t.Parallel()

	item := crawler.QueueItem{JobID: "job-9", Params: crawler.JobParameters{URL: "https://example.com"}}
	q := new(queue.MockQueue)
	q.On("Enqueue", mock.Anything, item).Return(nil)

	require.NoError(t, New(q, nil).Enqueue(context.Background(), item))
	q.AssertExpectations(t)
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ crawler.QueueItem) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return crawler.QueueItem{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

func (q *blockingQueue) Close() {}

