package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// captureSink records every batch the hub delivers.
type captureSink struct {
	mu         sync.Mutex
	batches    [][]Event
	consumeErr error
	closed     bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return s.consumeErr
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *captureSink) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func (s *captureSink) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func hubEvent(stage Stage) Event {
	evt := Event{
		JobID: "job-hub",
		TS:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Stage: stage,
	}
	switch stage {
	case StagePageFetch:
		evt.Site = "example.com"
		evt.StatusClass = Status2xx
	case StagePageError:
		evt.URL = "https://example.com/broken"
	case StagePageSkip:
		evt.Note = "visited"
	}
	return evt
}

func TestHubFlushesWhenBatchFills(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{
		BufferSize:     16,
		MaxBatchEvents: 3,
		MaxBatchWait:   time.Minute,
	}, sink)

	for i := 0; i < 3; i++ {
		hub.Emit(hubEvent(StagePageFetch))
	}
	require.Eventually(t, func() bool {
		return sink.batchCount() == 1 && sink.eventCount() == 3
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Close(context.Background()))
}

func TestHubFlushesOnTimer(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{
		BufferSize:     16,
		MaxBatchEvents: 100,
		MaxBatchWait:   20 * time.Millisecond,
	}, sink)

	hub.Emit(hubEvent(StageJobStart))
	require.Eventually(t, func() bool {
		return sink.batchCount() == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Close(context.Background()))
}

func TestHubCloseDrainsBuffer(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{
		BufferSize:     16,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(hubEvent(StageJobStart))
	hub.Emit(hubEvent(StageJobDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 2, sink.eventCount())
	require.True(t, sink.wasClosed())
}

func TestHubKeepsFlushingAfterSinkError(t *testing.T) {
	t.Parallel()

	sink := &captureSink{consumeErr: errors.New("sink down")}
	hub := NewHub(Config{
		BufferSize:     16,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(hubEvent(StageJobStart))
	hub.Emit(hubEvent(StageJobDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 2, sink.eventCount())
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{
		BufferSize:     16,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(Event{Stage: StageJobStart}) // no job id, no timestamp
	hub.Emit(Event{JobID: "job-hub", TS: time.Now(), Stage: Stage("BOGUS")})
	hub.Emit(hubEvent(StageJobDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 1, sink.eventCount())
}

func TestNilHubIsInert(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(hubEvent(StageJobStart))
	require.NoError(t, hub.Close(context.Background()))
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{BufferSize: 16}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(hubEvent(StageJobStart))
	require.Zero(t, sink.eventCount())
	// A second Close is a no-op.
	require.NoError(t, hub.Close(context.Background()))
}

func TestWarnThrottleSpacing(t *testing.T) {
	t.Parallel()

	th := warnThrottle{interval: time.Second}
	base := time.Unix(100, 0)
	require.True(t, th.Allow(base))
	require.False(t, th.Allow(base.Add(500*time.Millisecond)))
	require.True(t, th.Allow(base.Add(1500*time.Millisecond)))

	unlimited := warnThrottle{}
	require.True(t, unlimited.Allow(base))
	require.True(t, unlimited.Allow(base))
}
