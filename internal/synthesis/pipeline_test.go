package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitegist/sitegist/internal/crawler"
	"github.com/sitegist/sitegist/internal/llm"
)

// MockClient is a mock implementation of the llm.Client interface.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Generate(ctx context.Context, params llm.Params, prompt string) (string, error) {
	args := m.Called(ctx, params, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockClient) Close() {
	m.Called()
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

func chunkPrompt(part int) interface{} {
	return mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, fmt.Sprintf("This is part %d of", part))
	})
}

func combinePrompt() interface{} {
	return mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "--- Section 1 ---")
	})
}

func anyChunkPrompt() interface{} {
	return mock.MatchedBy(func(prompt string) bool {
		return !strings.Contains(prompt, "--- Section 1 ---")
	})
}

func page(url, title, content string) crawler.PageRecord {
	return crawler.PageRecord{URL: url, Title: title, Content: content}
}

func newTestPipeline(client llm.Client, cfg Config) *Pipeline {
	p := NewPipeline(client, cfg, fixedClock{t: time.Unix(1700000000, 0)}, nil, zap.NewNop())
	p.backoffBase = time.Millisecond
	return p
}

func TestPipeline_Process(t *testing.T) {
	t.Run("missing credential skips synthesis", func(t *testing.T) {
		// Arrange
		pipeline := newTestPipeline(nil, Config{Model: "claude-3-5-haiku-latest"})
		pages := []crawler.PageRecord{page("http://example.com", "Home", "welcome")}

		// Act
		result, err := pipeline.Process(context.Background(), "job-1", pages, Params{})

		// Assert
		require.NoError(t, err)
		require.True(t, result.Skipped)
		require.NotEmpty(t, result.SkipReason)
		require.Empty(t, result.Output)
		require.Equal(t, TaskSummarize, result.Task)
		require.Equal(t, pages, result.Pages)
		require.Equal(t, 1, result.Meta.PagesProcessed)
		require.Zero(t, result.Meta.ChunksProcessed)
	})

	t.Run("single chunk needs no combine call", func(t *testing.T) {
		// Arrange
		client := new(MockClient)
		pipeline := newTestPipeline(client, Config{Model: "claude-3-5-haiku-latest"})
		pages := []crawler.PageRecord{page("http://example.com", "Home", "A short page about nothing much.")}

		client.On("Generate", mock.Anything, mock.Anything, mock.MatchedBy(func(prompt string) bool {
			return strings.Contains(prompt, "Title: Home") &&
				strings.Contains(prompt, "URL: http://example.com") &&
				!strings.Contains(prompt, "This is part")
		})).Return("  the summary  ", nil).Once()

		// Act
		result, err := pipeline.Process(context.Background(), "job-1", pages, Params{Task: TaskSummarize})

		// Assert
		require.NoError(t, err)
		require.False(t, result.Skipped)
		require.Equal(t, "the summary", result.Output)
		require.Equal(t, 1, result.Meta.PagesProcessed)
		require.Equal(t, 1, result.Meta.ChunksProcessed)
		require.Zero(t, result.Meta.ChunksFailed)
		require.Equal(t, "claude-3-5-haiku-latest", result.Meta.Model)
		require.Equal(t, pages, result.Pages)
		client.AssertExpectations(t)
	})

	t.Run("per job model overrides the default", func(t *testing.T) {
		// Arrange
		client := new(MockClient)
		pipeline := newTestPipeline(client, Config{Model: "claude-3-5-haiku-latest"})
		pages := []crawler.PageRecord{page("http://example.com", "Home", "content")}

		client.On("Generate", mock.Anything, mock.MatchedBy(func(p llm.Params) bool {
			return p.Model == "claude-sonnet-4-5" && p.MaxTokens == 2000
		}), mock.Anything).Return("done", nil).Once()

		// Act
		result, err := pipeline.Process(context.Background(), "job-1", pages, Params{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 2000,
		})

		// Assert
		require.NoError(t, err)
		require.Equal(t, "claude-sonnet-4-5", result.Meta.Model)
		client.AssertExpectations(t)
	})

	t.Run("multiple chunks are merged by one combine call", func(t *testing.T) {
		// Arrange
		client := new(MockClient)
		pipeline := newTestPipeline(client, Config{ChunkSize: 120, Concurrency: 1, Model: "m"})
		pages := []crawler.PageRecord{
			page("http://example.com/a", "Alpha", strings.Repeat("alpha content here. ", 5)),
			page("http://example.com/b", "Beta", strings.Repeat("beta content here. ", 5)),
		}

		client.On("Generate", mock.Anything, mock.Anything, anyChunkPrompt()).Return("part text", nil)
		client.On("Generate", mock.Anything, mock.Anything, combinePrompt()).Return("merged text", nil).Once()

		// Act
		result, err := pipeline.Process(context.Background(), "job-1", pages, Params{})

		// Assert
		require.NoError(t, err)
		require.Equal(t, "merged text", result.Output)
		require.Greater(t, result.Meta.ChunksProcessed, 1)
		client.AssertExpectations(t)
	})

	t.Run("chunk outputs rejoin in chunk order", func(t *testing.T) {
		// Arrange: the first chunk finishes after the second, and the failed
		// combine call forces the concatenation to show its ordering. A
		// chunk size of 80 splits these two pages into exactly two chunks.
		client := new(MockClient)
		pipeline := newTestPipeline(client, Config{ChunkSize: 80, Concurrency: 2, Model: "m"})
		pages := []crawler.PageRecord{
			page("http://example.com/a", "Alpha", "alpha page text"),
			page("http://example.com/b", "Beta", "beta page text"),
		}

		released := make(chan struct{})
		client.On("Generate", mock.Anything, mock.Anything, chunkPrompt(1)).
			Run(func(mock.Arguments) { <-released }).
			Return("first part", nil).Once()
		client.On("Generate", mock.Anything, mock.Anything, chunkPrompt(2)).
			Run(func(mock.Arguments) { close(released) }).
			Return("second part", nil).Once()
		client.On("Generate", mock.Anything, mock.Anything, combinePrompt()).
			Return("", errors.New("model overloaded")).Once()

		// Act
		result, err := pipeline.Process(context.Background(), "job-1", pages, Params{})

		// Assert
		require.NoError(t, err)
		require.Equal(t, "first part\n\nsecond part", result.Output)
		require.Equal(t, 2, result.Meta.ChunksProcessed)
		client.AssertExpectations(t)
	})

	t.Run("failed chunk leaves a placeholder in position", func(t *testing.T) {
		// Arrange
		client := new(MockClient)
		pipeline := newTestPipeline(client, Config{ChunkSize: 80, Concurrency: 1, Model: "m"})
		pages := []crawler.PageRecord{
			page("http://example.com/a", "Alpha", "alpha page text"),
			page("http://example.com/b", "Beta", "beta page text"),
		}

		client.On("Generate", mock.Anything, mock.Anything, chunkPrompt(1)).Return("first part", nil).Once()
		client.On("Generate", mock.Anything, mock.Anything, chunkPrompt(2)).
			Return("", errors.New("bad request")).Once()
		client.On("Generate", mock.Anything, mock.Anything, combinePrompt()).
			Return("", errors.New("bad request")).Once()

		// Act
		result, err := pipeline.Process(context.Background(), "job-1", pages, Params{})

		// Assert
		require.NoError(t, err)
		require.Contains(t, result.Output, "first part")
		require.Contains(t, result.Output, "[part 2/2 failed:")
		require.Equal(t, 2, result.Meta.ChunksProcessed)
		require.Equal(t, 1, result.Meta.ChunksFailed)
		client.AssertExpectations(t)
	})

	t.Run("retryable errors are retried", func(t *testing.T) {
		// Arrange
		client := new(MockClient)
		pipeline := newTestPipeline(client, Config{MaxRetries: 3, Model: "m"})
		pages := []crawler.PageRecord{page("http://example.com", "Home", "content")}

		client.On("Generate", mock.Anything, mock.Anything, mock.Anything).
			Return("", &llm.RetryableError{StatusCode: 429, Message: "rate limited"}).Once()
		client.On("Generate", mock.Anything, mock.Anything, mock.Anything).
			Return("recovered", nil).Once()

		// Act
		result, err := pipeline.Process(context.Background(), "job-1", pages, Params{})

		// Assert
		require.NoError(t, err)
		require.Equal(t, "recovered", result.Output)
		require.Zero(t, result.Meta.ChunksFailed)
		client.AssertExpectations(t)
	})

	t.Run("retries stop at the attempt budget", func(t *testing.T) {
		// Arrange
		client := new(MockClient)
		pipeline := newTestPipeline(client, Config{MaxRetries: 2, Model: "m"})
		pages := []crawler.PageRecord{page("http://example.com", "Home", "content")}

		client.On("Generate", mock.Anything, mock.Anything, mock.Anything).
			Return("", &llm.RetryableError{StatusCode: 503, Message: "overloaded"})

		// Act
		result, err := pipeline.Process(context.Background(), "job-1", pages, Params{})

		// Assert
		require.NoError(t, err)
		require.Contains(t, result.Output, "[part 1/1 failed:")
		require.Equal(t, 1, result.Meta.ChunksFailed)
		client.AssertNumberOfCalls(t, "Generate", 2)
	})

	t.Run("terminal errors are not retried", func(t *testing.T) {
		// Arrange
		client := new(MockClient)
		pipeline := newTestPipeline(client, Config{MaxRetries: 3, Model: "m"})
		pages := []crawler.PageRecord{page("http://example.com", "Home", "content")}

		client.On("Generate", mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("invalid api key"))

		// Act
		result, err := pipeline.Process(context.Background(), "job-1", pages, Params{})

		// Assert
		require.NoError(t, err)
		require.Equal(t, 1, result.Meta.ChunksFailed)
		client.AssertNumberOfCalls(t, "Generate", 1)
	})

	t.Run("zero pages produce an empty result without calls", func(t *testing.T) {
		// Arrange
		client := new(MockClient)
		pipeline := newTestPipeline(client, Config{Model: "m"})

		// Act
		result, err := pipeline.Process(context.Background(), "job-1", nil, Params{})

		// Assert
		require.NoError(t, err)
		require.Empty(t, result.Output)
		require.False(t, result.Skipped)
		require.Zero(t, result.Meta.PagesProcessed)
		client.AssertNumberOfCalls(t, "Generate", 0)
	})

	t.Run("context cancellation returns the partial output", func(t *testing.T) {
		// Arrange
		client := new(MockClient)
		pipeline := newTestPipeline(client, Config{Concurrency: 1, Model: "m"})
		pages := []crawler.PageRecord{page("http://example.com", "Home", "content")}

		ctx, cancel := context.WithCancel(context.Background())
		client.On("Generate", mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return("partial", nil).Once()

		// Act
		result, err := pipeline.Process(ctx, "job-1", pages, Params{})

		// Assert
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, "partial", result.Output)
		client.AssertExpectations(t)
	})
}

func TestTaskInstruction_FallsBackToTaskVerb(t *testing.T) {
	got := taskInstruction("translate")
	require.Contains(t, got, "Translate the following website content")

	require.Equal(t, summarizeInstruction, taskInstruction(TaskSummarize))
	require.Equal(t, extractFactsInstruction, taskInstruction(TaskExtractFacts))
	require.Equal(t, structuredAnalysisInstruction, taskInstruction(TaskStructuredAnalysis))
	require.Equal(t, generateQAInstruction, taskInstruction(TaskGenerateQA))
}

func TestBuildDocument_SeparatesPages(t *testing.T) {
	doc := buildDocument([]crawler.PageRecord{
		page("http://example.com/", "Home", "welcome text"),
		page("http://example.com/about", "", "about text"),
	})

	require.Contains(t, doc, "Title: Home\nURL: http://example.com/\n\nwelcome text")
	require.Contains(t, doc, "Title: (untitled)\nURL: http://example.com/about\n\nabout text")
	require.Equal(t, 1, strings.Count(doc, "===== PAGE BREAK ====="))
}
