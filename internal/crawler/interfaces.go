package crawler

import (
	"context"
	"time"
)

// Renderer fetches and renders one URL, returning extracted text, the DOM
// snapshot, and outbound links. Implementations own their fetch mechanics
// (plain HTTP, headless browser, or both).
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (RenderedPage, error)
	Close(ctx context.Context) error
}

// RobotsPolicy answers whether a URL may be fetched under robots.txt rules.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// JobStore persists jobs and their synthesis results.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	SetResult(ctx context.Context, jobID string, result SynthesisResult) error
	GetResult(ctx context.Context, jobID string) (SynthesisResult, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for snapshot naming and integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
