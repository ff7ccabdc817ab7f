// Package main hosts the sitegist executable.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and job endpoints.
//     Submissions are validated, normalized into crawler.JobParameters, persisted
//     via the JobStore, and enqueued for work.
//   - Dispatcher & queue: jobs flow through a bounded in-memory queue sized by
//     crawl.queue_depth and fan out to a fixed worker pool sized by
//     crawl.concurrency. Closing the queue on shutdown lets workers drain what
//     was already accepted.
//   - Crawl pipeline: the engine walks same-host links breadth-first from the
//     seed. Each page goes through a plain HTTP probe first; when the heuristic
//     detector flags the result as script-driven, the page is re-rendered in
//     headless Chrome. robots.txt is honored unless disabled, and per-domain
//     pacing keeps the crawler polite.
//   - Synthesis: extracted page text is chunked and sent to the Anthropic API,
//     then reduced into a single result. Without a configured key the job still
//     completes and the result is marked skipped.
//   - Persistence & fanout: rendered HTML snapshots go to the configured blob
//     store (memory/local/GCS), jobs and results live in memory or Postgres,
//     and a compact Pub/Sub notification is published per finished job when a
//     topic is configured. Progress events stream to the log and Prometheus
//     sinks.
//   - Plumbing: Viper populates config from a file and SITEGIST_* env vars,
//     zap provides structured logging, and Prometheus metrics are served on
//     /metrics. The process reacts to SIGTERM with a bounded graceful drain,
//     so it fits Cloud Run style scale-out.
package main

import (
	"github.com/sitegist/sitegist/cmd"
)

func main() {
	cmd.Execute()
}
