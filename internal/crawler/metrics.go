package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pagesFetchedTotal tracks pages rendered and recorded during crawls.
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawl_pages_fetched_total",
		Help: "The total number of pages successfully rendered and recorded.",
	})
	// pagesFailedTotal tracks pages whose render failed and was skipped.
	pagesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawl_pages_failed_total",
		Help: "The total number of pages that failed to render.",
	})
	// pagesSkippedTotal tracks frontier entries dropped before any fetch,
	// labelled by reason.
	pagesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawl_pages_skipped_total",
		Help: "The total number of frontier entries skipped before fetching.",
	}, []string{"reason"})
	// headlessPromotionsTotal tracks probes promoted to the headless tier.
	headlessPromotionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawl_headless_promotions_total",
		Help: "The total number of pages promoted from the HTTP probe to headless Chrome.",
	})
	// renderSeconds observes wall time per successful page render.
	renderSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawl_render_seconds",
		Help:    "Time taken to render a single page.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	// pageBytesTotal accumulates the size of rendered HTML documents.
	pageBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawl_page_bytes_total",
		Help: "The total number of rendered HTML bytes fetched.",
	})
)

const (
	skipReasonVisited    = "visited"
	skipReasonOutOfScope = "out_of_scope"
	skipReasonRobots     = "robots"
)
