// Package queue defines the interface for the job queue.
// This abstraction keeps job submission and the worker pool independent
// of a specific queue implementation.
package queue

import (
	"context"
	"errors"

	"github.com/sitegist/sitegist/internal/crawler"
)

// ErrClosed reports an operation on a queue shut down by Close.
var ErrClosed = errors.New("queue closed")

// Queue is the transport between job submission and the worker pool.
type Queue interface {
	// Enqueue adds a job for the worker pool to pick up. It blocks while
	// the queue is full until the context ends.
	Enqueue(ctx context.Context, item crawler.QueueItem) error

	// Dequeue blocks until a job is available, the queue is closed, or
	// the context ends.
	Dequeue(ctx context.Context) (crawler.QueueItem, error)

	// Close stops the queue. Implementations reject new items afterwards
	// but may keep handing out items accepted before the close.
	Close()
}
