// Package server assembles the service's dependencies and runs them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sitegist/sitegist/internal/api"
	"github.com/sitegist/sitegist/internal/clock/system"
	"github.com/sitegist/sitegist/internal/config"
	"github.com/sitegist/sitegist/internal/crawler"
	"github.com/sitegist/sitegist/internal/dispatcher"
	"github.com/sitegist/sitegist/internal/hash/sha256"
	"github.com/sitegist/sitegist/internal/id/uuid"
	"github.com/sitegist/sitegist/internal/llm"
	"github.com/sitegist/sitegist/internal/logging"
	"github.com/sitegist/sitegist/internal/metrics"
	"github.com/sitegist/sitegist/internal/progress"
	progresssinks "github.com/sitegist/sitegist/internal/progress/sinks"
	memorypublisher "github.com/sitegist/sitegist/internal/publisher/memory"
	gcppublisher "github.com/sitegist/sitegist/internal/publisher/pubsub"
	memqueue "github.com/sitegist/sitegist/internal/queue/memory"
	gcsstorage "github.com/sitegist/sitegist/internal/storage/gcs"
	localstorage "github.com/sitegist/sitegist/internal/storage/local"
	memorystorage "github.com/sitegist/sitegist/internal/storage/memory"
	pgstore "github.com/sitegist/sitegist/internal/storage/postgres"
	"github.com/sitegist/sitegist/internal/synthesis"
	"github.com/sitegist/sitegist/internal/telemetry"
	"github.com/sitegist/sitegist/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App holds the wired application and its closable dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	queue     *memqueue.Queue

	hub           *progress.Hub
	renderer      *crawler.SiteRenderer
	llmClient     *llm.AnthropicClient
	gcsClient     *storage.Client
	pgJobStore    *pgstore.JobStore
	pubPublisher  *gcppublisher.Publisher
	traceShutdown func(context.Context) error
}

// Build creates the application's dependencies. Backends are selected from
// config: an empty DSN means the in-memory job store, an empty Pub/Sub
// project means the in-memory publisher, and so on. Secrets (the DSN, the
// generation API key) are never logged.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	metrics.Init()

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application", zap.Int("port", cfg.Server.Port))

	app.traceShutdown, err = telemetry.Init(ctx, "sitegist")
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}

	jobStore, err := setupJobStore(ctx, app)
	if err != nil {
		return nil, err
	}
	blobStore, err := setupBlobStore(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	if err := setupProgress(ctx, app); err != nil {
		return nil, err
	}
	app.renderer, err = NewRenderer(cfg, logger)
	if err != nil {
		return nil, err
	}
	pipeline, llmClient, err := NewSynthesisPipeline(cfg, system.New(), app.hub, logger.Named("synthesis"))
	if err != nil {
		return nil, err
	}
	app.llmClient = llmClient

	app.queue = memqueue.NewQueue(cfg.Crawl.QueueDepth)
	app.dispatch = setupDispatcher(app, jobStore, blobStore, publisher, pipeline)

	app.apiServer = api.NewServer(
		jobStore,
		app.dispatch,
		uuid.New(),
		system.New(),
		cfg,
		logger.Named("api"),
	)
	return app, nil
}

// Run starts the dispatcher and HTTP server and blocks until the context is
// canceled or a termination signal arrives. Shutdown is staged: the HTTP
// server drains first so no new jobs arrive, then the queue closes and the
// workers finish what they already dequeued, bounded by the shutdown budget.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()
	dispatcherDone := make(chan struct{})
	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(dispatcherCtx)
		close(dispatcherDone)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", zap.Error(err))
	}

	a.queue.Close()
	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not drain in time, canceling")
		dispatcherCancel()
		<-dispatcherDone
	}

	return a.Close(shutdownCtx)
}

// Close releases every dependency Build opened.
func (a *App) Close(ctx context.Context) error {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.renderer != nil {
		if err := a.renderer.Close(ctx); err != nil {
			a.logger.Warn("renderer close failed", zap.Error(err))
		}
	}
	if a.llmClient != nil {
		a.llmClient.Close()
	}
	if a.pubPublisher != nil {
		if err := a.pubPublisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgJobStore != nil {
		a.pgJobStore.Close()
	}
	if a.traceShutdown != nil {
		if err := a.traceShutdown(ctx); err != nil {
			a.logger.Warn("trace provider shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
	a.logger.Info("shutdown complete")
	return nil
}

func setupJobStore(ctx context.Context, app *App) (crawler.JobStore, error) {
	if app.cfg.Database.DSN == "" {
		app.logger.Info("using in-memory job store")
		return memorystorage.NewJobStore(), nil
	}
	store, err := pgstore.NewJobStore(ctx, pgstore.JobStoreConfig{
		DSN:             app.cfg.Database.DSN,
		Table:           app.cfg.Database.Table,
		MaxConns:        app.cfg.Database.MaxConns,
		MinConns:        app.cfg.Database.MinConns,
		MaxConnLifetime: time.Duration(app.cfg.Database.MaxConnLifetimeMin) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres job store init failed: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure jobs schema: %w", err)
	}
	app.pgJobStore = store
	app.logger.Info("using postgres job store", zap.String("table", app.cfg.Database.Table))
	return store, nil
}

func setupBlobStore(ctx context.Context, app *App) (crawler.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcsClient = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: app.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using gcs snapshot store", zap.String("bucket", app.cfg.Storage.Bucket))
		return blobStore, nil
	case "local":
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local snapshot store", zap.String("dir", app.cfg.Storage.LocalDir))
		return blobStore, nil
	default:
		app.logger.Info("using in-memory snapshot store")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, error) {
	if app.cfg.PubSub.ProjectID == "" || app.cfg.PubSub.TopicName == "" {
		app.logger.Info("no pub/sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.New(ctx, app.cfg.PubSub.ProjectID, app.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.pubPublisher = pub
	app.logger.Info("pub/sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func setupProgress(ctx context.Context, app *App) error {
	if !app.cfg.Progress.Enabled {
		app.logger.Info("progress tracking disabled")
		return nil
	}
	var sinkList []progress.Sink
	if app.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	app.hub = progress.NewHub(progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(app.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(app.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    ctx,
		Logger:         app.logger.Named("progress_hub"),
	}, sinkList...)
	app.logger.Info("progress hub initialized", zap.Int("sinks", len(sinkList)))
	return nil
}

// NewRenderer assembles the tiered renderer from config: a Colly probe
// always, headless Chrome when enabled. The one-shot CLI crawl uses the
// same assembly. A failed Chrome start degrades to probe-only rather than
// failing the build.
func NewRenderer(cfg config.Config, logger *zap.Logger) (*crawler.SiteRenderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	probe, err := crawler.NewProbeFetcher(crawler.ProbeConfig{
		UserAgent:      cfg.Crawl.UserAgent,
		Timeout:        cfg.FetchTimeout(),
		Parallelism:    cfg.Crawl.Concurrency,
		PerDomainDelay: perDomainDelay(cfg.Crawl.PerDomainRPS),
	}, logger.Named("probe"))
	if err != nil {
		return nil, fmt.Errorf("probe fetcher init failed: %w", err)
	}

	var headless *crawler.ChromedpRenderer
	if cfg.Headless.Enabled {
		headless, err = crawler.NewChromedpRenderer(crawler.HeadlessConfig{
			UserAgent:   cfg.Crawl.UserAgent,
			MaxParallel: cfg.Headless.MaxParallel,
			NavTimeout:  time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			DomainQPS:   cfg.Crawl.PerDomainRPS,
			DomainBurst: cfg.Crawl.PerDomainBurst,
		}, logger.Named("headless"))
		if err != nil {
			logger.Warn("headless renderer init failed, probe only", zap.Error(err))
			headless = nil
		} else {
			logger.Info("headless renderer started",
				zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}

	detector := crawler.NewHeuristicDetector(cfg.Headless.MinHTMLBytes)
	return crawler.NewSiteRenderer(probe, headless, detector, logger.Named("renderer"))
}

// NewSynthesisPipeline builds the generation pipeline. The returned client
// is nil when no API key is configured; the pipeline then produces skipped
// results. Callers own closing the client.
func NewSynthesisPipeline(
	cfg config.Config,
	clock crawler.Clock,
	hub *progress.Hub,
	logger *zap.Logger,
) (*synthesis.Pipeline, *llm.AnthropicClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var client llm.Client
	var anthropic *llm.AnthropicClient
	if cfg.Anthropic.APIKey != "" {
		var err error
		anthropic, err = llm.NewAnthropicClient(llm.Config{
			APIKey:      cfg.Anthropic.APIKey,
			BaseURL:     cfg.Anthropic.BaseURL,
			Version:     cfg.Anthropic.Version,
			Model:       cfg.Anthropic.Model,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Temperature: &cfg.Anthropic.Temperature,
			Timeout:     time.Duration(cfg.Anthropic.TimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("anthropic client init failed: %w", err)
		}
		client = anthropic
		logger.Info("anthropic client configured", zap.String("model", cfg.Anthropic.Model))
	} else {
		logger.Warn("no generation api key configured, synthesis will be skipped")
	}
	pipeline := synthesis.NewPipeline(client, synthesis.Config{
		Task:        cfg.Synthesis.Task,
		ChunkSize:   cfg.Synthesis.ChunkSize,
		Concurrency: cfg.Synthesis.Concurrency,
		MaxRetries:  cfg.Synthesis.MaxRetries,
		Model:       cfg.Anthropic.Model,
	}, clock, hub, logger)
	return pipeline, anthropic, nil
}

func setupDispatcher(
	app *App,
	jobStore crawler.JobStore,
	blobStore crawler.BlobStore,
	publisher crawler.Publisher,
	pipeline *synthesis.Pipeline,
) *dispatcher.Dispatcher {
	hasher := sha256.New()
	clock := system.New()
	workerCfg := worker.Config{
		ContentType:  app.cfg.Storage.ContentType,
		BlobPrefix:   app.cfg.Storage.Prefix,
		Topic:        app.cfg.PubSub.TopicName,
		UserAgent:    app.cfg.Crawl.UserAgent,
		JobTimeout:   app.cfg.JobBudget(),
		FetchTimeout: app.cfg.FetchTimeout(),
	}

	concurrency := app.cfg.Crawl.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	workers := make([]*worker.Worker, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		workers = append(workers, worker.New(
			app.queue,
			jobStore,
			blobStore,
			publisher,
			app.renderer,
			pipeline,
			hasher,
			clock,
			app.hub,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	app.logger.Info("worker pool sized", zap.Int("workers", concurrency))
	return dispatcher.New(app.queue, workers)
}

// perDomainDelay converts a requests-per-second cap into the colly delay
// equivalent. Zero means no delay.
func perDomainDelay(rps float64) time.Duration {
	if rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rps)
}
