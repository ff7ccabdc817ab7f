package crawler

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sitegist/sitegist/internal/progress"
)

const (
	defaultMaxPages     = 100
	defaultSelector     = "body"
	defaultFetchTimeout = 30 * time.Second
)

// Engine drains a breadth-first frontier rooted at a single seed URL and
// collects one PageRecord per page it renders. A single Run owns its
// frontier and visited set; nothing is shared between runs.
type Engine struct {
	renderer Renderer
	robots   RobotsPolicy
	clock    Clock
	hasher   Hasher
	hub      *progress.Hub
	logger   *zap.Logger
}

// NewEngine wires the crawl engine. hub may be nil when progress reporting
// is disabled.
func NewEngine(renderer Renderer, robots RobotsPolicy, clock Clock, hasher Hasher, hub *progress.Hub, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		renderer: renderer,
		robots:   robots,
		clock:    clock,
		hasher:   hasher,
		hub:      hub,
		logger:   logger,
	}
}

// Run crawls outward from seed until the frontier drains, the page ceiling
// is reached, or ctx is cancelled. Pages render in discovery order; a page
// that fails to render is logged and skipped, never retried. On context
// cancellation the records collected so far are returned alongside the
// context error.
func (e *Engine) Run(ctx context.Context, seed string, params CrawlParams) ([]PageRecord, CrawlStats, error) {
	params = params.withDefaults()
	var stats CrawlStats

	seedURL, err := parseSeed(seed)
	if err != nil {
		return nil, stats, err
	}

	scope := NewScope(seedURL, e.robots)
	frontier := NewFrontier()
	visited := NewVisitedSet()
	frontier.Push(seedURL.String(), 0)

	pages := make([]PageRecord, 0, params.MaxPages)
	for frontier.Len() > 0 && len(pages) < params.MaxPages {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("crawl cancelled",
				zap.String("job_id", params.JobID),
				zap.Int("pages", len(pages)),
				zap.Error(err))
			return pages, stats, err
		}

		entry, _ := frontier.Pop()
		norm, err := NormalizeURL(entry.url)
		if err != nil {
			// unparseable URLs cannot be fetched or deduplicated
			e.skip(params.JobID, entry, skipReasonOutOfScope, &stats)
			continue
		}
		if visited.Seen(norm) {
			e.skip(params.JobID, entry, skipReasonVisited, &stats)
			continue
		}
		if !scope.InScope(entry.url) {
			e.skip(params.JobID, entry, skipReasonOutOfScope, &stats)
			continue
		}
		if !scope.Allowed(ctx, entry.url) {
			e.skip(params.JobID, entry, skipReasonRobots, &stats)
			continue
		}

		// Marked before the render so a failed page is never retried.
		visited.Mark(norm)

		start := e.clock.Now()
		page, err := e.renderPage(ctx, entry, params)
		if err != nil {
			stats.PagesFailed++
			pagesFailedTotal.Inc()
			e.logger.Warn("page render failed; skipping",
				zap.String("job_id", params.JobID),
				zap.String("url", entry.url),
				zap.Int("depth", entry.depth),
				zap.Error(err))
			e.hub.Emit(progress.Event{
				JobID: params.JobID,
				TS:    e.clock.Now().UTC(),
				Stage: progress.StagePageError,
				Site:  siteOf(entry.url),
				URL:   entry.url,
				Dur:   e.clock.Now().Sub(start),
				Note:  err.Error(),
			})
			// A per-fetch timeout is a page failure; a dead parent
			// context ends the run.
			if ctx.Err() != nil {
				return pages, stats, ctx.Err()
			}
			continue
		}

		record := e.buildRecord(entry, page)
		pages = append(pages, record)
		stats.PagesFetched++
		pagesFetchedTotal.Inc()
		e.hub.Emit(progress.Event{
			JobID:       params.JobID,
			TS:          record.CrawledAt,
			Stage:       progress.StagePageFetch,
			Site:        siteOf(entry.url),
			URL:         entry.url,
			Bytes:       int64(len(page.HTML)),
			Visits:      1,
			StatusClass: progress.ClassifyStatus(page.StatusCode),
			Dur:         e.clock.Now().Sub(start),
		})
		e.logger.Debug("page rendered",
			zap.String("job_id", params.JobID),
			zap.String("url", entry.url),
			zap.Int("depth", entry.depth),
			zap.Int("status", page.StatusCode),
			zap.Bool("used_js", page.UsedJS),
			zap.Int("links", len(page.Links)))

		if entry.depth < params.Depth {
			e.enqueueLinks(frontier, visited, scope, page.Links, entry.depth+1)
		}
	}

	e.logger.Info("crawl complete",
		zap.String("job_id", params.JobID),
		zap.Int("pages", len(pages)),
		zap.Int("failed", stats.PagesFailed),
		zap.Int("skipped", stats.PagesSkipped))
	return pages, stats, nil
}

func (e *Engine) renderPage(ctx context.Context, entry frontierEntry, params CrawlParams) (RenderedPage, error) {
	fetchCtx := ctx
	if params.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, params.FetchTimeout)
		defer cancel()
	}
	return e.renderer.Render(fetchCtx, RenderRequest{
		URL:      entry.url,
		Selector: params.Selector,
		WaitTime: params.WaitTime,
	})
}

func (e *Engine) buildRecord(entry frontierEntry, page RenderedPage) PageRecord {
	record := PageRecord{
		URL:          entry.url,
		Title:        page.Title,
		Description:  page.Description,
		Content:      page.Content,
		RenderedHTML: page.HTML,
		CrawledAt:    e.clock.Now().UTC(),
		Depth:        entry.depth,
		StatusCode:   page.StatusCode,
		UsedJS:       page.UsedJS,
	}
	if e.hasher != nil {
		if digest, err := e.hasher.Hash([]byte(page.HTML)); err == nil {
			record.ContentHash = digest
		}
	}
	return record
}

// enqueueLinks pushes newly discovered links at the given depth. Links are
// already absolute; the same-origin check here only keeps foreign hosts out
// of the frontier early, the dequeue path remains the authority.
func (e *Engine) enqueueLinks(frontier *Frontier, visited *VisitedSet, scope *Scope, links []string, depth int) {
	seen := make(map[string]struct{}, len(links))
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil || skippableResource(u) {
			continue
		}
		if !scope.InScope(link) {
			continue
		}
		norm, err := NormalizeURL(link)
		if err != nil {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		if visited.Seen(norm) {
			continue
		}
		frontier.Push(link, depth)
	}
}

func (e *Engine) skip(jobID string, entry frontierEntry, reason string, stats *CrawlStats) {
	stats.PagesSkipped++
	pagesSkippedTotal.WithLabelValues(reason).Inc()
	e.logger.Debug("skipping frontier entry",
		zap.String("job_id", jobID),
		zap.String("url", entry.url),
		zap.String("reason", reason))
	e.hub.Emit(progress.Event{
		JobID: jobID,
		TS:    e.clock.Now().UTC(),
		Stage: progress.StagePageSkip,
		Site:  siteOf(entry.url),
		URL:   entry.url,
		Note:  reason,
	})
}

func siteOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func (p CrawlParams) withDefaults() CrawlParams {
	if p.Depth < 0 {
		p.Depth = 0
	}
	if p.MaxPages <= 0 {
		p.MaxPages = defaultMaxPages
	}
	if p.Selector == "" {
		p.Selector = defaultSelector
	}
	if p.FetchTimeout <= 0 {
		p.FetchTimeout = defaultFetchTimeout
	}
	return p
}
