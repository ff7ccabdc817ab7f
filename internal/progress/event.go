// Package progress defines the event structures emitted by crawl and
// synthesis workers.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart   Stage = "JOB_START"
	StageJobDone    Stage = "JOB_DONE"
	StageJobError   Stage = "JOB_ERROR"
	StagePageFetch  Stage = "PAGE_FETCH"
	StagePageError  Stage = "PAGE_ERROR"
	StagePageSkip   Stage = "PAGE_SKIP"
	StageSynthStart Stage = "SYNTH_START"
	StageSynthChunk Stage = "SYNTH_CHUNK"
	StageSynthDone  Stage = "SYNTH_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for page fetches.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of job progress.
type Event struct {
	// JobID identifies the job run this event belongs to.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle, fetch, or synthesis milestone occurred.
	Stage Stage
	// Site optionally scopes page events to a host label.
	Site string
	// URL is the optional page URL; it should not contain credentials.
	URL string
	// Bytes carries the rendered document size for page fetches.
	Bytes int64
	// Visits increments by one for each successful page completion.
	Visits int64
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass
	// Dur captures execution latency for fetches, chunks, and completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context such as a skip reason,
	// an error string, or a chunk outcome.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageSynthStart, StageSynthChunk, StageSynthDone:
	case StagePageFetch:
		if e.Site == "" {
			return errors.New("page fetch requires site")
		}
		if e.StatusClass == "" {
			return errors.New("page fetch requires status class")
		}
	case StagePageError:
		if e.URL == "" {
			return errors.New("page error requires url")
		}
	case StagePageSkip:
		if e.Note == "" {
			return errors.New("page skip requires a reason note")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for page fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
