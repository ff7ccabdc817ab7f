package crawler

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// SiteRenderer implements Renderer with a two-tier strategy: a plain-HTTP
// probe first, promoted to headless Chrome when the detector finds JS
// signals or the probe fails. Both tiers feed the same extraction.
type SiteRenderer struct {
	probe    *ProbeFetcher
	headless *ChromedpRenderer
	detector *HeuristicDetector
	logger   *zap.Logger
}

// tieredPage is the raw document produced by whichever tier won.
type tieredPage struct {
	FinalURL   string
	StatusCode int
	HTML       string
	UsedJS     bool
}

// NewSiteRenderer assembles the two-tier renderer. Either tier may be nil,
// but not both.
func NewSiteRenderer(probe *ProbeFetcher, headless *ChromedpRenderer, detector *HeuristicDetector, logger *zap.Logger) (*SiteRenderer, error) {
	if probe == nil && headless == nil {
		return nil, errors.New("renderer needs at least one fetch tier")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiteRenderer{
		probe:    probe,
		headless: headless,
		detector: detector,
		logger:   logger,
	}, nil
}

// Render implements Renderer. A page that cannot be fetched by any tier, or
// whose final status is an HTTP error, fails with a RenderError.
func (r *SiteRenderer) Render(ctx context.Context, req RenderRequest) (RenderedPage, error) {
	start := time.Now()
	raw, err := r.fetchTiered(ctx, req)
	if err != nil {
		return RenderedPage{}, err
	}
	renderSeconds.Observe(time.Since(start).Seconds())

	// Status 0 means the tier could not observe one; only definite HTTP
	// errors reject the page.
	if raw.StatusCode >= 400 {
		return RenderedPage{}, &RenderError{URL: req.URL, StatusCode: raw.StatusCode}
	}

	base, parseErr := url.Parse(raw.FinalURL)
	if raw.FinalURL == "" || parseErr != nil {
		if base, parseErr = url.Parse(req.URL); parseErr != nil {
			return RenderedPage{}, &RenderError{URL: req.URL, Err: parseErr}
		}
	}

	ex, err := extractPage(raw.HTML, base, req.Selector)
	if err != nil {
		return RenderedPage{}, &RenderError{URL: req.URL, Err: err}
	}

	pageBytesTotal.Add(float64(len(raw.HTML)))
	return RenderedPage{
		URL:         req.URL,
		FinalURL:    raw.FinalURL,
		StatusCode:  raw.StatusCode,
		Title:       ex.Title,
		Description: ex.Description,
		Content:     ex.Content,
		HTML:        raw.HTML,
		Links:       ex.Links,
		UsedJS:      raw.UsedJS,
	}, nil
}

// Close releases the headless browser if one is attached.
func (r *SiteRenderer) Close(ctx context.Context) error {
	if r.headless != nil {
		return r.headless.Close(ctx)
	}
	return nil
}

func (r *SiteRenderer) fetchTiered(ctx context.Context, req RenderRequest) (tieredPage, error) {
	if r.probe == nil {
		return r.renderHeadless(ctx, req)
	}

	page, err := r.probe.Fetch(ctx, req.URL)
	if err == nil && page.StatusCode < 400 && !r.needsJS(page.Body, req.Selector) {
		return tieredPage{
			FinalURL:   page.FinalURL,
			StatusCode: page.StatusCode,
			HTML:       string(page.Body),
		}, nil
	}

	if r.headless == nil {
		if err != nil {
			return tieredPage{}, &RenderError{URL: req.URL, StatusCode: page.StatusCode, Err: err}
		}
		if page.StatusCode >= 400 {
			return tieredPage{}, &RenderError{URL: req.URL, StatusCode: page.StatusCode}
		}
		// Looks like a JS shell, but without a headless tier the probe
		// body is the best available document.
		return tieredPage{
			FinalURL:   page.FinalURL,
			StatusCode: page.StatusCode,
			HTML:       string(page.Body),
		}, nil
	}

	if err != nil {
		r.logger.Debug("probe failed; promoting to headless",
			zap.String("url", req.URL), zap.Error(err))
	} else {
		r.logger.Debug("probe looks like a JS shell; promoting to headless",
			zap.String("url", req.URL), zap.Int("status", page.StatusCode))
	}
	headlessPromotionsTotal.Inc()
	return r.renderHeadless(ctx, req)
}

func (r *SiteRenderer) renderHeadless(ctx context.Context, req RenderRequest) (tieredPage, error) {
	page, err := r.headless.Render(ctx, req.URL, req.WaitTime)
	if err != nil {
		return tieredPage{}, &RenderError{URL: req.URL, Err: err}
	}
	return tieredPage{
		FinalURL:   page.FinalURL,
		StatusCode: page.StatusCode,
		HTML:       page.HTML,
		UsedJS:     true,
	}, nil
}

func (r *SiteRenderer) needsJS(body []byte, selector string) bool {
	if r.detector == nil {
		return false
	}
	return r.detector.NeedsJS(body, selector)
}
