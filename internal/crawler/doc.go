// Package crawler implements the breadth-first site crawl engine: the
// frontier and visited set, the scope and robots filters, the two-tier page
// renderer (colly probe promoted to headless Chrome when needed), content
// and link extraction, and the orchestrator driving them. It also defines
// the job types shared across the API, worker, and storage subsystems.
package crawler
