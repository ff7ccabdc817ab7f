// Package worker implements the crawl-and-synthesize execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sitegist/sitegist/internal/crawler"
	"github.com/sitegist/sitegist/internal/metrics"
	"github.com/sitegist/sitegist/internal/progress"
	"github.com/sitegist/sitegist/internal/queue"
	"github.com/sitegist/sitegist/internal/synthesis"
)

// Config controls Worker behavior.
type Config struct {
	ContentType  string
	BlobPrefix   string
	Topic        string
	UserAgent    string
	JobTimeout   time.Duration
	FetchTimeout time.Duration
}

// Synthesizer turns crawled pages into a synthesis result.
type Synthesizer interface {
	Process(ctx context.Context, jobID string, pages []crawler.PageRecord, params synthesis.Params) (crawler.SynthesisResult, error)
}

// Worker consumes queue items and executes the crawl pipeline: render the
// site, persist DOM snapshots, synthesize, store the result, publish the
// completion event.
type Worker struct {
	queue       queue.Queue
	jobStore    crawler.JobStore
	blobStore   crawler.BlobStore
	publisher   crawler.Publisher
	renderer    crawler.Renderer
	synthesizer Synthesizer
	hasher      crawler.Hasher
	clock       crawler.Clock
	hub         *progress.Hub
	cfg         Config
	logger      *zap.Logger
}

// New constructs a Worker.
func New(
	q queue.Queue,
	jobStore crawler.JobStore,
	blobStore crawler.BlobStore,
	publisher crawler.Publisher,
	renderer crawler.Renderer,
	synthesizer Synthesizer,
	hasher crawler.Hasher,
	clock crawler.Clock,
	hub *progress.Hub,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &Worker{
		queue:       q,
		jobStore:    jobStore,
		blobStore:   blobStore,
		publisher:   publisher,
		renderer:    renderer,
		synthesizer: synthesizer,
		hasher:      hasher,
		clock:       clock,
		hub:         hub,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the
// queue is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item crawler.QueueItem) {
	ctx, span := otel.Tracer("sitegist/worker").Start(ctx, "job.process",
		trace.WithAttributes(
			attribute.String("job.id", item.JobID),
			attribute.String("job.url", item.Params.URL),
		))
	defer span.End()

	started := w.clock.Now()
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, crawler.JobStatusRunning, "", crawler.JobCounters{}); err != nil {
		w.logger.Error("job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	w.hub.Emit(progress.Event{
		JobID: item.JobID,
		TS:    started.UTC(),
		Stage: progress.StageJobStart,
		URL:   item.Params.URL,
	})
	w.logger.Info("job started",
		zap.String("job_id", item.JobID),
		zap.String("url", item.Params.URL),
		zap.String("task", item.Params.Task))

	jobCtx := ctx
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}

	pages, stats, crawlErr := w.crawl(jobCtx, item)
	counters := crawler.JobCounters{
		PagesFetched: stats.PagesFetched,
		PagesFailed:  stats.PagesFailed,
		PagesSkipped: stats.PagesSkipped,
	}

	// Snapshots and all later writes run on the worker context so a job
	// timeout cannot block persistence of what was collected.
	w.uploadSnapshots(ctx, item.JobID, pages)

	result, synthErr := w.synthesize(jobCtx, item, pages, crawlErr)
	counters.ChunksProcessed = result.Meta.ChunksProcessed
	counters.ChunksFailed = result.Meta.ChunksFailed

	if err := w.jobStore.SetResult(ctx, item.JobID, result); err != nil {
		w.logger.Error("result write failed", zap.String("job_id", item.JobID), zap.Error(err))
	}

	status, errText := deriveFinalStatus(crawlErr, synthErr)
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, status, errText, counters); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
	}
	if status == crawler.JobStatusFailed {
		span.SetStatus(codes.Error, errText)
	}
	metrics.ObserveJob(string(status))

	finished := w.clock.Now()
	w.publishCompletion(ctx, item, status, counters, finished.Sub(started), finished)
	w.emitTerminal(item.JobID, status, errText, finished, finished.Sub(started))
	w.logger.Info("job finished",
		zap.String("job_id", item.JobID),
		zap.String("status", string(status)),
		zap.Int("pages", counters.PagesFetched),
		zap.Int("chunks", counters.ChunksProcessed),
		zap.Duration("duration", finished.Sub(started)))
}

// crawl builds a fresh engine per job because the robots policy is a job
// parameter, not a process-wide setting.
func (w *Worker) crawl(ctx context.Context, item crawler.QueueItem) ([]crawler.PageRecord, crawler.CrawlStats, error) {
	robots := crawler.NewRobotsEnforcer(item.Params.RespectRobots, w.cfg.UserAgent, w.logger)
	engine := crawler.NewEngine(w.renderer, robots, w.clock, w.hasher, w.hub, w.logger)
	return engine.Run(ctx, item.Params.URL, crawler.CrawlParams{
		JobID:        item.JobID,
		Depth:        item.Params.Depth,
		MaxPages:     item.Params.MaxPages,
		Selector:     item.Params.Selector,
		WaitTime:     time.Duration(item.Params.WaitTimeMs) * time.Millisecond,
		FetchTimeout: w.cfg.FetchTimeout,
	})
}

// uploadSnapshots writes each page's DOM snapshot to blob storage and
// stamps the record with the resulting URI. The stored result never embeds
// rendered HTML; the snapshot is the only copy. Upload failures degrade to
// a record without a snapshot URI.
func (w *Worker) uploadSnapshots(ctx context.Context, jobID string, pages []crawler.PageRecord) {
	for i := range pages {
		html := pages[i].RenderedHTML
		pages[i].RenderedHTML = ""
		if w.blobStore == nil || html == "" {
			continue
		}
		name := pages[i].ContentHash
		if len(name) > 16 {
			name = name[:16]
		}
		if name == "" {
			name = fmt.Sprintf("page-%d", i)
		}
		uri, err := w.blobStore.PutObject(ctx, w.buildBlobPath(jobID, name), w.cfg.ContentType, []byte(html))
		if err != nil {
			w.logger.Warn("snapshot upload failed",
				zap.String("job_id", jobID),
				zap.String("url", pages[i].URL),
				zap.Error(err))
			continue
		}
		pages[i].SnapshotURI = uri
	}
}

func (w *Worker) synthesize(
	ctx context.Context,
	item crawler.QueueItem,
	pages []crawler.PageRecord,
	crawlErr error,
) (crawler.SynthesisResult, error) {
	if crawlErr != nil {
		// The partial pages are still worth storing and inspecting.
		return crawler.SynthesisResult{
			Task:       item.Params.Task,
			Skipped:    true,
			SkipReason: fmt.Sprintf("crawl aborted: %s", crawlErr),
			Meta: crawler.SynthesisMeta{
				ProcessedAt:    w.clock.Now().UTC(),
				PagesProcessed: len(pages),
			},
			Pages: pages,
		}, nil
	}
	return w.synthesizer.Process(ctx, item.JobID, pages, synthesis.Params{
		Task:        item.Params.Task,
		Model:       item.Params.Model,
		MaxTokens:   item.Params.MaxTokens,
		Temperature: item.Params.Temperature,
	})
}

func (w *Worker) buildBlobPath(jobID, name string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", jobID, name)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, jobID, name)
}

func (w *Worker) publishCompletion(
	ctx context.Context,
	item crawler.QueueItem,
	status crawler.JobStatus,
	counters crawler.JobCounters,
	dur time.Duration,
	finished time.Time,
) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	event := crawler.CompletionEvent{
		JobID:           item.JobID,
		URL:             item.Params.URL,
		Status:          status,
		Task:            item.Params.Task,
		PagesFetched:    counters.PagesFetched,
		ChunksProcessed: counters.ChunksProcessed,
		DurationMs:      dur.Milliseconds(),
		FinishedAt:      finished.UTC(),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		w.logger.Warn("completion publish failed", zap.String("job_id", item.JobID), zap.Error(err))
	}
}

func (w *Worker) emitTerminal(jobID string, status crawler.JobStatus, errText string, ts time.Time, dur time.Duration) {
	stage := progress.StageJobDone
	note := ""
	if status == crawler.JobStatusFailed {
		stage = progress.StageJobError
		note = errText
	}
	w.hub.Emit(progress.Event{
		JobID: jobID,
		TS:    ts.UTC(),
		Stage: stage,
		Dur:   dur,
		Note:  note,
	})
}

// deriveFinalStatus maps run outcomes to a terminal status. Only infra
// errors fail a job; a crawl that fetched zero pages still succeeds with
// an empty result.
func deriveFinalStatus(crawlErr, synthErr error) (crawler.JobStatus, string) {
	switch {
	case crawlErr != nil:
		return crawler.JobStatusFailed, crawlErr.Error()
	case synthErr != nil:
		return crawler.JobStatusFailed, synthErr.Error()
	default:
		return crawler.JobStatusSucceeded, ""
	}
}
