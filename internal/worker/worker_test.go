package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitegist/sitegist/internal/crawler"
	"github.com/sitegist/sitegist/internal/metrics"
	pubmemory "github.com/sitegist/sitegist/internal/publisher/memory"
	memqueue "github.com/sitegist/sitegist/internal/queue/memory"
	storememory "github.com/sitegist/sitegist/internal/storage/memory"
	"github.com/sitegist/sitegist/internal/synthesis"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fakeRenderer struct {
	mu        sync.Mutex
	responses map[string]crawler.RenderedPage
	errs      map[string]error
	calls     []string
}

func (f *fakeRenderer) Render(_ context.Context, req crawler.RenderRequest) (crawler.RenderedPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)
	if err, ok := f.errs[req.URL]; ok {
		return crawler.RenderedPage{}, err
	}
	page, ok := f.responses[req.URL]
	if !ok {
		return crawler.RenderedPage{}, fmt.Errorf("no canned response for %s", req.URL)
	}
	return page, nil
}

func (f *fakeRenderer) Close(context.Context) error { return nil }

type fakeSynthesizer struct {
	mu        sync.Mutex
	result    crawler.SynthesisResult
	err       error
	calls     int
	gotParams synthesis.Params
	gotPages  []crawler.PageRecord
}

func (f *fakeSynthesizer) Process(
	_ context.Context,
	_ string,
	pages []crawler.PageRecord,
	params synthesis.Params,
) (crawler.SynthesisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotParams = params
	f.gotPages = pages
	result := f.result
	result.Pages = pages
	return result, f.err
}

type fakeHasher struct {
	hash string
}

func (f *fakeHasher) Hash(_ []byte) (string, error) { return f.hash, nil }

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

type failingBlobStore struct{}

func (failingBlobStore) PutObject(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("upload failed")
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("publish failed")
}

func queuedJob(t *testing.T, store *storememory.JobStore, params crawler.JobParameters) crawler.QueueItem {
	t.Helper()
	item := crawler.QueueItem{JobID: "job-" + params.Task, Params: params, Submitted: time.Now().Unix()}
	err := store.CreateJob(context.Background(), crawler.Job{
		ID:         item.JobID,
		Status:     crawler.JobStatusQueued,
		Submitted:  time.Now().UTC(),
		Parameters: params,
	})
	require.NoError(t, err)
	return item
}

func TestWorker_ProcessJob_SuccessFlow(t *testing.T) {
	t.Parallel()

	jobStore := storememory.NewJobStore()
	blobStore := storememory.NewBlobStore()
	publisher := pubmemory.New()
	q := memqueue.NewQueue(1)
	renderer := &fakeRenderer{
		responses: map[string]crawler.RenderedPage{
			"https://example.com": {
				URL:        "https://example.com",
				StatusCode: 200,
				Title:      "Example",
				Content:    "hello world",
				HTML:       "<html>ok</html>",
			},
		},
	}
	synthesizer := &fakeSynthesizer{
		result: crawler.SynthesisResult{
			Task:   "summarize",
			Output: "a summary",
			Meta:   crawler.SynthesisMeta{Model: "claude-3-5-haiku-latest", ChunksProcessed: 1},
		},
	}

	item := queuedJob(t, jobStore, crawler.JobParameters{
		URL:      "https://example.com",
		MaxPages: 5,
		Selector: "body",
		Task:     "summarize",
	})
	require.NoError(t, q.Enqueue(context.Background(), item))
	q.Close()

	w := New(
		q,
		jobStore,
		blobStore,
		publisher,
		renderer,
		synthesizer,
		&fakeHasher{hash: "abc123"},
		&fakeClock{now: time.Unix(100, 0)},
		nil,
		Config{
			ContentType: "text/html",
			BlobPrefix:  "pages",
			Topic:       "job-events",
		},
		zap.NewNop(),
	)

	// Run drains the closed queue and returns.
	w.Run(context.Background())

	final, err := jobStore.GetJob(context.Background(), item.JobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusSucceeded, final.Status)
	require.Empty(t, final.ErrorText)
	require.NotNil(t, final.Started)
	require.NotNil(t, final.Finished)
	require.Equal(t, 1, final.Counters.PagesFetched)
	require.Equal(t, 1, final.Counters.ChunksProcessed)

	result, err := jobStore.GetResult(context.Background(), item.JobID)
	require.NoError(t, err)
	require.Equal(t, "a summary", result.Output)
	require.Len(t, result.Pages, 1)
	require.Equal(t, "memory://pages/job-summarize/abc123.html", result.Pages[0].SnapshotURI)
	require.Empty(t, result.Pages[0].RenderedHTML)

	snapshot, ok := blobStore.Object("pages/job-summarize/abc123.html")
	require.True(t, ok)
	require.Equal(t, "<html>ok</html>", string(snapshot))

	require.Equal(t, 1, synthesizer.calls)
	require.Equal(t, "summarize", synthesizer.gotParams.Task)
	require.Len(t, synthesizer.gotPages, 1)

	msgs := publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "job-events", msgs[0].Topic)
	event, ok := msgs[0].Payload.(crawler.CompletionEvent)
	require.True(t, ok)
	require.Equal(t, item.JobID, event.JobID)
	require.Equal(t, crawler.JobStatusSucceeded, event.Status)
	require.Equal(t, 1, event.PagesFetched)
}

func TestWorker_ProcessJob_NoPagesStillSucceeds(t *testing.T) {
	t.Parallel()

	jobStore := storememory.NewJobStore()
	q := memqueue.NewQueue(1)
	renderer := &fakeRenderer{
		errs: map[string]error{"https://example.com": errors.New("render failed")},
	}
	synthesizer := &fakeSynthesizer{result: crawler.SynthesisResult{Task: "summarize"}}

	item := queuedJob(t, jobStore, crawler.JobParameters{
		URL:      "https://example.com",
		MaxPages: 5,
		Task:     "summarize",
	})
	require.NoError(t, q.Enqueue(context.Background(), item))
	q.Close()

	w := New(
		q,
		jobStore,
		storememory.NewBlobStore(),
		pubmemory.New(),
		renderer,
		synthesizer,
		&fakeHasher{hash: "abc123"},
		&fakeClock{now: time.Unix(100, 0)},
		nil,
		Config{},
		zap.NewNop(),
	)
	w.Run(context.Background())

	// Page-level failures are not job failures; an empty result is stored.
	final, err := jobStore.GetJob(context.Background(), item.JobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusSucceeded, final.Status)
	require.Empty(t, final.ErrorText)
	require.Equal(t, 0, final.Counters.PagesFetched)
	require.Equal(t, 1, final.Counters.PagesFailed)
	require.Equal(t, 1, synthesizer.calls)

	result, err := jobStore.GetResult(context.Background(), item.JobID)
	require.NoError(t, err)
	require.Empty(t, result.Pages)
}

func TestWorker_ProcessJob_InvalidSeedSkipsSynthesis(t *testing.T) {
	t.Parallel()

	jobStore := storememory.NewJobStore()
	q := memqueue.NewQueue(1)
	synthesizer := &fakeSynthesizer{}

	item := queuedJob(t, jobStore, crawler.JobParameters{
		URL:  "not a url",
		Task: "summarize",
	})
	require.NoError(t, q.Enqueue(context.Background(), item))
	q.Close()

	w := New(
		q,
		jobStore,
		storememory.NewBlobStore(),
		pubmemory.New(),
		&fakeRenderer{},
		synthesizer,
		&fakeHasher{hash: "abc123"},
		&fakeClock{now: time.Unix(100, 0)},
		nil,
		Config{},
		zap.NewNop(),
	)
	w.Run(context.Background())

	final, err := jobStore.GetJob(context.Background(), item.JobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusFailed, final.Status)
	require.NotEmpty(t, final.ErrorText)
	require.Equal(t, 0, synthesizer.calls)

	result, err := jobStore.GetResult(context.Background(), item.JobID)
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.True(t, strings.HasPrefix(result.SkipReason, "crawl aborted:"))
}

func TestWorker_ProcessJob_SideEffectFailuresDoNotFailJob(t *testing.T) {
	t.Parallel()

	jobStore := storememory.NewJobStore()
	q := memqueue.NewQueue(1)
	renderer := &fakeRenderer{
		responses: map[string]crawler.RenderedPage{
			"https://example.com": {
				URL:        "https://example.com",
				StatusCode: 200,
				Content:    "hello",
				HTML:       "<html>ok</html>",
			},
		},
	}
	synthesizer := &fakeSynthesizer{
		result: crawler.SynthesisResult{Task: "summarize", Output: "a summary"},
	}

	item := queuedJob(t, jobStore, crawler.JobParameters{
		URL:      "https://example.com",
		MaxPages: 5,
		Task:     "summarize",
	})
	require.NoError(t, q.Enqueue(context.Background(), item))
	q.Close()

	w := New(
		q,
		jobStore,
		failingBlobStore{},
		failingPublisher{},
		renderer,
		synthesizer,
		&fakeHasher{hash: "abc123"},
		&fakeClock{now: time.Unix(100, 0)},
		nil,
		Config{Topic: "job-events"},
		zap.NewNop(),
	)
	w.Run(context.Background())

	final, err := jobStore.GetJob(context.Background(), item.JobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusSucceeded, final.Status)

	result, err := jobStore.GetResult(context.Background(), item.JobID)
	require.NoError(t, err)
	require.Len(t, result.Pages, 1)
	require.Empty(t, result.Pages[0].SnapshotURI)
}

func TestWorker_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	q := memqueue.NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(
		q,
		storememory.NewJobStore(),
		storememory.NewBlobStore(),
		pubmemory.New(),
		&fakeRenderer{},
		&fakeSynthesizer{},
		&fakeHasher{hash: "abc123"},
		&fakeClock{now: time.Unix(100, 0)},
		nil,
		Config{},
		zap.NewNop(),
	)

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestDeriveFinalStatus(t *testing.T) {
	t.Parallel()

	status, errText := deriveFinalStatus(nil, nil)
	require.Equal(t, crawler.JobStatusSucceeded, status)
	require.Empty(t, errText)

	status, errText = deriveFinalStatus(errors.New("boom"), nil)
	require.Equal(t, crawler.JobStatusFailed, status)
	require.Equal(t, "boom", errText)

	status, errText = deriveFinalStatus(nil, errors.New("synthesis died"))
	require.Equal(t, crawler.JobStatusFailed, status)
	require.Equal(t, "synthesis died", errText)
}
