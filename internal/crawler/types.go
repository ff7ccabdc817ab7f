package crawler

import (
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobParameters captures the resolved per-job knobs. Client omissions are
// filled from service defaults before the job is persisted, so stored
// parameters always describe exactly what the job will do.
type JobParameters struct {
	URL           string   `json:"url"`
	Depth         int      `json:"depth"`
	Selector      string   `json:"selector"`
	MaxPages      int      `json:"max_pages"`
	RespectRobots bool     `json:"respect_robots_txt"`
	WaitTimeMs    int      `json:"wait_time_ms"`
	Task          string   `json:"task"`
	Model         string   `json:"model,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
}

// Job represents the metadata persisted for each submitted crawl request.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
	Counters   JobCounters   `json:"counters"`
}

// JobCounters tracks page and chunk outcomes per job.
type JobCounters struct {
	PagesFetched    int `json:"pages_fetched"`
	PagesFailed     int `json:"pages_failed"`
	PagesSkipped    int `json:"pages_skipped"`
	ChunksProcessed int `json:"chunks_processed"`
	ChunksFailed    int `json:"chunks_failed"`
}

// PageRecord is the structured result of successfully rendering one URL.
// Records are collected in crawl order.
type PageRecord struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Content      string    `json:"content"`
	RenderedHTML string    `json:"rendered_html"`
	CrawledAt    time.Time `json:"crawled_at"`
	Depth        int       `json:"depth"`
	StatusCode   int       `json:"status_code,omitempty"`
	UsedJS       bool      `json:"used_js,omitempty"`
	ContentHash  string    `json:"content_hash,omitempty"`
	SnapshotURI  string    `json:"snapshot_uri,omitempty"`
}

// SynthesisMeta describes how a synthesis result was produced.
// ChunksProcessed counts every chunk attempted, including failed ones.
type SynthesisMeta struct {
	Model           string    `json:"model"`
	ProcessedAt     time.Time `json:"processed_at"`
	PagesProcessed  int       `json:"pages_processed"`
	ChunksProcessed int       `json:"chunks_processed"`
	ChunksFailed    int       `json:"chunks_failed,omitempty"`
}

// SynthesisResult is the outcome of one synthesis pipeline invocation.
// Skipped marks the degraded-but-successful case where no generation
// credential was configured; Pages always carries the original records.
type SynthesisResult struct {
	Task       string        `json:"task"`
	Output     string        `json:"output"`
	Skipped    bool          `json:"skipped,omitempty"`
	SkipReason string        `json:"skip_reason,omitempty"`
	Meta       SynthesisMeta `json:"meta"`
	Pages      []PageRecord  `json:"pages"`
}

// CrawlStats summarizes frontier outcomes for one engine run.
type CrawlStats struct {
	PagesFetched int
	PagesFailed  int
	PagesSkipped int
}

// CrawlParams is the subset of job parameters the engine consumes.
type CrawlParams struct {
	JobID        string
	Depth        int
	MaxPages     int
	Selector     string
	WaitTime     time.Duration
	FetchTimeout time.Duration
}

// RenderRequest asks the renderer for one page.
type RenderRequest struct {
	URL      string
	Selector string
	WaitTime time.Duration
}

// RenderedPage is the renderer's output for one URL: extracted text plus
// the DOM snapshot and the outbound links discovered in it. Links are
// absolute, resolved against the fetched page's final URL.
type RenderedPage struct {
	URL         string
	FinalURL    string
	StatusCode  int
	Title       string
	Description string
	Content     string
	HTML        string
	Links       []string
	UsedJS      bool
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    JobParameters
	Submitted int64
}

// CompletionEvent is published when a job reaches a terminal status.
type CompletionEvent struct {
	JobID           string    `json:"job_id"`
	URL             string    `json:"url"`
	Status          JobStatus `json:"status"`
	Task            string    `json:"task"`
	PagesFetched    int       `json:"pages_fetched"`
	ChunksProcessed int       `json:"chunks_processed"`
	DurationMs      int64     `json:"duration_ms"`
	FinishedAt      time.Time `json:"finished_at"`
}
