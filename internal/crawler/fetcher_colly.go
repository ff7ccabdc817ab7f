package crawler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// ProbeConfig configures the plain-HTTP probe tier.
type ProbeConfig struct {
	UserAgent      string
	Timeout        time.Duration
	Parallelism    int
	PerDomainDelay time.Duration
}

// ProbeFetcher retrieves pages over plain HTTP using a Colly collector.
// It is the cheap first tier; pages that turn out to need JS are promoted
// to the headless renderer. Robots enforcement and visit dedup both happen
// in the engine, so the collector's own robots handling and revisit guard
// are switched off.
type ProbeFetcher struct {
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// probePage is the raw result of one probe fetch.
type probePage struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
}

// NewProbeFetcher constructs a configured Colly-based probe.
func NewProbeFetcher(cfg ProbeConfig, logger *zap.Logger) (*ProbeFetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
	)
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}
	if err := base.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
		Delay:       cfg.PerDomainDelay,
	}); err != nil {
		return nil, err
	}

	return &ProbeFetcher{
		baseCollector: base,
		logger:        logger,
	}, nil
}

// Fetch retrieves one page via a clone of the base collector.
func (f *ProbeFetcher) Fetch(ctx context.Context, rawURL string) (probePage, error) {
	collector := f.baseCollector.Clone()
	resultCh := make(chan probeResult, 1)
	var once sync.Once
	send := func(res probeResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		page := probePage{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte{}, r.Body...),
		}
		f.logger.Debug("probe fetched",
			zap.String("url", rawURL),
			zap.Int("status", r.StatusCode),
			zap.Int("bytes", len(r.Body)))
		send(probeResult{page: page})
	})

	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		res := probeResult{err: err}
		if r != nil {
			res.page = probePage{URL: rawURL, StatusCode: r.StatusCode}
		}
		send(res)
	})

	if err := collector.Visit(rawURL); err != nil {
		return probePage{URL: rawURL}, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return probePage{URL: rawURL}, err
		}
		return res.page, res.err
	default:
		return probePage{URL: rawURL}, errors.New("probe produced no result")
	}
}

type probeResult struct {
	page probePage
	err  error
}
