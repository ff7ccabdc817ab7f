// Package synthesis turns crawled page records into a single generated text.
// The pipeline concatenates pages into one document, splits it into chunks
// that fit a generation call, runs the task prompt over every chunk, and
// merges multi-chunk output with one combine call.
package synthesis

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sitegist/sitegist/internal/chunker"
	"github.com/sitegist/sitegist/internal/crawler"
	"github.com/sitegist/sitegist/internal/llm"
	"github.com/sitegist/sitegist/internal/progress"
)

const (
	defaultChunkSize   = 30000
	defaultConcurrency = 2
	defaultMaxRetries  = 3
	maxBackoff         = 30 * time.Second
)

// Config tunes the pipeline. Model is the default model recorded in result
// metadata when the job does not name one.
type Config struct {
	Task        string
	ChunkSize   int
	Concurrency int
	MaxRetries  int
	Model       string
}

// Params are the per-job generation knobs resolved from job parameters.
// Zero values fall back to the pipeline's configured defaults.
type Params struct {
	Task        string
	Model       string
	MaxTokens   int
	Temperature *float64
}

// Pipeline drives chunked generation over crawl output. A nil client means
// no generation credential was configured; Process then short-circuits into
// a skipped result instead of failing the job.
type Pipeline struct {
	client      llm.Client
	cfg         Config
	clock       crawler.Clock
	hub         *progress.Hub
	logger      *zap.Logger
	backoffBase time.Duration
}

// NewPipeline wires the synthesis pipeline. client and hub may be nil.
func NewPipeline(client llm.Client, cfg Config, clock crawler.Clock, hub *progress.Hub, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		client:      client,
		cfg:         cfg.withDefaults(),
		clock:       clock,
		hub:         hub,
		logger:      logger,
		backoffBase: time.Second,
	}
}

// Process runs the task over pages and returns the synthesized result. A
// failed chunk becomes an inline placeholder at its position; a failed
// combine call degrades to concatenation. The returned error is non-nil
// only when ctx dies mid-run, and the partial result is still returned.
func (p *Pipeline) Process(ctx context.Context, jobID string, pages []crawler.PageRecord, params Params) (crawler.SynthesisResult, error) {
	task := params.Task
	if task == "" {
		task = p.cfg.Task
	}
	model := params.Model
	if model == "" {
		model = p.cfg.Model
	}
	start := p.clock.Now()

	if p.client == nil {
		p.logger.Info("synthesis skipped",
			zap.String("job_id", jobID),
			zap.String("task", task),
			zap.Int("pages", len(pages)))
		return crawler.SynthesisResult{
			Task:       task,
			Skipped:    true,
			SkipReason: llm.ErrMissingAPIKey.Error(),
			Meta: crawler.SynthesisMeta{
				ProcessedAt:    start.UTC(),
				PagesProcessed: len(pages),
			},
			Pages: pages,
		}, nil
	}

	if len(pages) == 0 {
		return crawler.SynthesisResult{
			Task: task,
			Meta: crawler.SynthesisMeta{
				Model:       model,
				ProcessedAt: start.UTC(),
			},
		}, nil
	}

	chunks, err := chunker.Split(buildDocument(pages), p.cfg.ChunkSize)
	if err != nil {
		return crawler.SynthesisResult{}, fmt.Errorf("chunk document: %w", err)
	}

	p.hub.Emit(progress.Event{
		JobID: jobID,
		TS:    start.UTC(),
		Stage: progress.StageSynthStart,
		Note:  task,
	})
	p.logger.Info("synthesis started",
		zap.String("job_id", jobID),
		zap.String("task", task),
		zap.String("model", model),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)))

	genParams := llm.Params{
		Model:       model,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}
	outputs, failed := p.processChunks(ctx, jobID, task, chunks, genParams)

	result := crawler.SynthesisResult{
		Task: task,
		Meta: crawler.SynthesisMeta{
			Model:           model,
			ProcessedAt:     p.clock.Now().UTC(),
			PagesProcessed:  len(pages),
			ChunksProcessed: len(chunks),
			ChunksFailed:    failed,
		},
		Pages: pages,
	}

	// A dead context makes the combine call pointless; return what we have.
	if err := ctx.Err(); err != nil {
		result.Output = strings.Join(outputs, "\n\n")
		p.logger.Warn("synthesis cancelled",
			zap.String("job_id", jobID),
			zap.Int("chunks", len(chunks)),
			zap.Error(err))
		return result, err
	}

	result.Output = outputs[0]
	if len(outputs) > 1 {
		result.Output = p.combine(ctx, jobID, task, outputs, genParams)
	}
	result.Meta.ProcessedAt = p.clock.Now().UTC()

	p.hub.Emit(progress.Event{
		JobID: jobID,
		TS:    result.Meta.ProcessedAt,
		Stage: progress.StageSynthDone,
		Dur:   p.clock.Now().Sub(start),
		Note:  task,
	})
	p.logger.Info("synthesis complete",
		zap.String("job_id", jobID),
		zap.String("task", task),
		zap.Int("chunks", len(chunks)),
		zap.Int("failed", failed),
		zap.Int("output_bytes", len(result.Output)))
	return result, nil
}

// processChunks runs the task prompt over every chunk on a bounded worker
// pool and rejoins results by chunk index, not completion order. Failed
// chunks yield a placeholder at their position.
func (p *Pipeline) processChunks(ctx context.Context, jobID, task string, chunks []string, genParams llm.Params) ([]string, int) {
	type chunkResult struct {
		idx  int
		text string
		err  error
	}
	results := make(chan chunkResult, len(chunks))
	sem := make(chan struct{}, p.cfg.Concurrency)

	for i, chunk := range chunks {
		sem <- struct{}{}
		go func(i int, chunk string) {
			defer func() { <-sem }()
			started := p.clock.Now()
			out, err := p.generate(ctx, genParams, buildChunkPrompt(task, chunk, i, len(chunks)))
			note := "ok"
			if err != nil {
				note = "error"
			}
			p.hub.Emit(progress.Event{
				JobID: jobID,
				TS:    p.clock.Now().UTC(),
				Stage: progress.StageSynthChunk,
				Dur:   p.clock.Now().Sub(started),
				Note:  note,
			})
			results <- chunkResult{idx: i, text: out, err: err}
		}(i, chunk)
	}

	outputs := make([]string, len(chunks))
	failed := 0
	for range chunks {
		r := <-results
		if r.err != nil {
			failed++
			p.logger.Warn("chunk generation failed",
				zap.String("job_id", jobID),
				zap.Int("chunk", r.idx),
				zap.Error(r.err))
			outputs[r.idx] = fmt.Sprintf("[part %d/%d failed: %s]", r.idx+1, len(chunks), r.err)
			continue
		}
		outputs[r.idx] = strings.TrimSpace(r.text)
	}
	return outputs, failed
}

// combine issues the single merge call over the ordered chunk outputs and
// falls back to plain concatenation when it fails.
func (p *Pipeline) combine(ctx context.Context, jobID, task string, outputs []string, genParams llm.Params) string {
	merged, err := p.generate(ctx, genParams, buildCombinePrompt(task, outputs))
	if err != nil {
		p.logger.Warn("combine call failed; falling back to concatenation",
			zap.String("job_id", jobID),
			zap.Int("sections", len(outputs)),
			zap.Error(err))
		return strings.Join(outputs, "\n\n")
	}
	return strings.TrimSpace(merged)
}

// generate calls the backend, retrying transient failures with jittered
// exponential backoff.
func (p *Pipeline) generate(ctx context.Context, genParams llm.Params, prompt string) (string, error) {
	var out string
	var err error
	for attempt := range p.cfg.MaxRetries {
		out, err = p.client.Generate(ctx, genParams, prompt)
		if err == nil || !llm.IsRetryable(err) || attempt == p.cfg.MaxRetries-1 {
			break
		}
		p.logger.Warn("retryable generation error",
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-time.After(p.backoff(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return out, err
}

// backoff returns the wait before retry attempt n (0-indexed) with jitter.
func (p *Pipeline) backoff(attempt int) time.Duration {
	base := p.backoffBase << uint(attempt)
	if base > maxBackoff {
		base = maxBackoff
	}
	return base + time.Duration(rand.Int64N(int64(base)/2+1))
}

func (c Config) withDefaults() Config {
	if c.Task == "" {
		c.Task = TaskSummarize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	return c
}
