package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitegist/sitegist/internal/clock/system"
	"github.com/sitegist/sitegist/internal/config"
	"github.com/sitegist/sitegist/internal/crawler"
	"github.com/sitegist/sitegist/internal/hash/sha256"
	"github.com/sitegist/sitegist/internal/id/uuid"
	"github.com/sitegist/sitegist/internal/logging"
	"github.com/sitegist/sitegist/internal/server"
	localstorage "github.com/sitegist/sitegist/internal/storage/local"
	"github.com/sitegist/sitegist/internal/synthesis"
)

type crawlFlags struct {
	url          string
	depth        int
	selector     string
	maxPages     int
	ignoreRobots bool
	waitMs       int
	task         string
	model        string
	out          string
}

// newCrawlCmd creates the 'crawl' subcommand: one crawl-and-synthesize pass
// in the foreground, result printed to stdout as JSON.
func newCrawlCmd() *cobra.Command {
	flags := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one site and print the synthesized result as JSON",
		Long: `Runs a single crawl starting from --url, renders pages that need
JavaScript, synthesizes the content with the configured language model, and
writes the result to stdout as JSON. Config defaults apply for every flag
left unset.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.url, "url", "", "seed URL to crawl (required)")
	cmd.Flags().IntVar(&flags.depth, "depth", 0, "link-following depth from the seed")
	cmd.Flags().StringVar(&flags.selector, "selector", "", "CSS selector for content extraction")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "maximum pages to fetch")
	cmd.Flags().BoolVar(&flags.ignoreRobots, "ignore-robots", false, "skip robots.txt checks")
	cmd.Flags().IntVar(&flags.waitMs, "wait-ms", 0, "settle time after render, in milliseconds")
	cmd.Flags().StringVar(&flags.task, "task", "", "instruction for the language model")
	cmd.Flags().StringVar(&flags.model, "model", "", "model override for generation")
	cmd.Flags().StringVar(&flags.out, "out", "", "directory for rendered HTML snapshots")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func runCrawl(cmd *cobra.Command, flags *crawlFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	renderer, err := server.NewRenderer(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := renderer.Close(ctx); cerr != nil {
			logger.Warn("renderer close failed", zap.Error(cerr))
		}
	}()

	jobID, err := uuid.New().NewID()
	if err != nil {
		return fmt.Errorf("generate job id: %w", err)
	}

	hasher := sha256.New()
	clock := system.New()
	respect := cfg.Crawl.RespectRobots && !flags.ignoreRobots
	robots := crawler.NewRobotsEnforcer(respect, cfg.Crawl.UserAgent, logger)
	engine := crawler.NewEngine(renderer, robots, clock, hasher, nil, logger)

	params := resolveCrawlParams(cmd, flags, cfg)
	params.JobID = jobID

	logger.Info("crawl starting",
		zap.String("job_id", jobID),
		zap.String("url", flags.url),
		zap.Int("depth", params.Depth),
		zap.Int("max_pages", params.MaxPages),
	)
	pages, stats, err := engine.Run(ctx, flags.url, params)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	logger.Info("crawl finished",
		zap.Int("pages_fetched", stats.PagesFetched),
		zap.Int("pages_failed", stats.PagesFailed),
		zap.Int("pages_skipped", stats.PagesSkipped),
	)

	if flags.out != "" {
		if err := writeSnapshots(ctx, flags.out, jobID, pages, logger); err != nil {
			return err
		}
	}
	// The printed result never embeds rendered HTML; --out is the only way
	// to keep the DOM copies.
	for i := range pages {
		pages[i].RenderedHTML = ""
	}

	pipeline, llmClient, err := server.NewSynthesisPipeline(cfg, clock, nil, logger.Named("synthesis"))
	if err != nil {
		return err
	}
	if llmClient != nil {
		defer llmClient.Close()
	}

	result, err := pipeline.Process(ctx, jobID, pages, synthesis.Params{
		Task:  flags.task,
		Model: flags.model,
	})
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// resolveCrawlParams starts from config defaults and applies only the flags
// the user actually set, so an explicit --depth 0 still wins over config.
func resolveCrawlParams(cmd *cobra.Command, flags *crawlFlags, cfg config.Config) crawler.CrawlParams {
	depth := cfg.Crawl.Depth
	if cmd.Flags().Changed("depth") {
		depth = flags.depth
	}
	maxPages := cfg.Crawl.MaxPages
	if cmd.Flags().Changed("max-pages") {
		maxPages = flags.maxPages
	}
	selector := cfg.Crawl.Selector
	if flags.selector != "" {
		selector = flags.selector
	}
	waitMs := cfg.Crawl.WaitTimeMs
	if cmd.Flags().Changed("wait-ms") {
		waitMs = flags.waitMs
	}
	return crawler.CrawlParams{
		Depth:        depth,
		MaxPages:     maxPages,
		Selector:     selector,
		WaitTime:     time.Duration(waitMs) * time.Millisecond,
		FetchTimeout: cfg.FetchTimeout(),
	}
}

// writeSnapshots stores each page's rendered HTML under dir and records the
// resulting URI on the page, mirroring the job service's snapshot layout.
func writeSnapshots(ctx context.Context, dir, jobID string, pages []crawler.PageRecord, logger *zap.Logger) error {
	store, err := localstorage.New(localstorage.Config{BaseDir: dir})
	if err != nil {
		return fmt.Errorf("init snapshot store: %w", err)
	}
	for i := range pages {
		html := pages[i].RenderedHTML
		if html == "" {
			continue
		}
		name := fmt.Sprintf("page-%d", i)
		if len(pages[i].ContentHash) >= 16 {
			name = pages[i].ContentHash[:16]
		}
		uri, err := store.PutObject(ctx, fmt.Sprintf("%s/%s.html", jobID, name),
			"text/html; charset=utf-8", []byte(html))
		if err != nil {
			logger.Warn("snapshot write failed", zap.String("url", pages[i].URL), zap.Error(err))
			continue
		}
		pages[i].SnapshotURI = uri
	}
	return nil
}
