package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/sitegist/sitegist/internal/progress"
)

// LogSink writes progress events to the structured log. Job and synthesis
// milestones land at info; the chattier per-page and per-chunk events land
// at debug so production logs stay readable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink writing through logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Empty fields are omitted rather
// than logged as zero values.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := make([]zap.Field, 0, 8)
		fields = append(fields,
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
		)
		if evt.Site != "" {
			fields = append(fields, zap.String("site", evt.Site))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.Bytes > 0 {
			fields = append(fields, zap.Int64("bytes", evt.Bytes))
		}
		if evt.StatusClass != "" {
			fields = append(fields, zap.String("status_class", string(evt.StatusClass)))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if perPage(evt.Stage) {
			s.logger.Debug("progress", fields...)
		} else {
			s.logger.Info("progress", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; there is nothing to flush.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func perPage(st progress.Stage) bool {
	switch st {
	case progress.StagePageFetch, progress.StagePageError, progress.StagePageSkip, progress.StageSynthChunk:
		return true
	default:
		return false
	}
}
