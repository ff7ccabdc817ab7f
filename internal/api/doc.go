// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/v1/jobs to submit a crawl-and-summarize job.
//   - GET /api/v1/jobs, /api/v1/jobs/{job_id} and /api/v1/jobs/{job_id}/result
//     for listing, status and the synthesized output.
package api
