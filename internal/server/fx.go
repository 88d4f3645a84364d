// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/scoutgrid/leadscout/internal/api"
	"github.com/scoutgrid/leadscout/internal/clock/system"
	"github.com/scoutgrid/leadscout/internal/config"
	"github.com/scoutgrid/leadscout/internal/dispatcher"
	collyfetcher "github.com/scoutgrid/leadscout/internal/fetcher/colly"
	headlessfetcher "github.com/scoutgrid/leadscout/internal/fetcher/headless"
	"github.com/scoutgrid/leadscout/internal/hash/sha256"
	"github.com/scoutgrid/leadscout/internal/headless/detector"
	"github.com/scoutgrid/leadscout/internal/id/uuid"
	"github.com/scoutgrid/leadscout/internal/lead"
	"github.com/scoutgrid/leadscout/internal/logging"
	"github.com/scoutgrid/leadscout/internal/policy/ratelimit"
	"github.com/scoutgrid/leadscout/internal/policy/simple"
	"github.com/scoutgrid/leadscout/internal/progress"
	progresssinks "github.com/scoutgrid/leadscout/internal/progress/sinks"
	memorypublisher "github.com/scoutgrid/leadscout/internal/publisher/memory"
	gcppublisher "github.com/scoutgrid/leadscout/internal/publisher/pubsub"
	queueMemory "github.com/scoutgrid/leadscout/internal/queue/memory"
	"github.com/scoutgrid/leadscout/internal/serp"
	gcsstorage "github.com/scoutgrid/leadscout/internal/storage/gcs"
	localstorage "github.com/scoutgrid/leadscout/internal/storage/local"
	memoryStorage "github.com/scoutgrid/leadscout/internal/storage/memory"
	pgstore "github.com/scoutgrid/leadscout/internal/storage/postgres"
	"github.com/scoutgrid/leadscout/internal/store"
	"github.com/scoutgrid/leadscout/internal/telemetry"
	"github.com/scoutgrid/leadscout/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	dispatch        *dispatcher.Dispatcher
	progressHub     *progress.Hub
	queue           *queueMemory.Queue
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storage         *storage.Client
	leadStore       *pgstore.LeadStore
	progressRepo    store.ProgressRepository
	tracerShutdown  func(context.Context) error
	metricShutdown  func(context.Context) error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	type SanitizedConfig struct {
		ServerPort     int    `json:"server_port"`
		StorageBackend string `json:"storage_backend"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:     cfg.Server.Port,
		StorageBackend: cfg.Storage.Backend,
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.queue.Close()
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.leadStore != nil {
		a.leadStore.Close()
	}
	if a.progressRepo != nil {
		if pgRepo, ok := a.progressRepo.(*pgstore.ProgressStore); ok {
			pgRepo.Close()
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if a.metricShutdown != nil {
		if err := a.metricShutdown(ctx); err != nil {
			a.logger.Warn("metric shutdown failed", zap.Error(err))
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	tp, mp, err := telemetry.InitTelemetry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	app.metricShutdown = mp.Shutdown

	app.logger.Info("building application dependencies")
	jobStore := memoryStorage.NewJobStore()

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}

	if err = setupDatabase(ctx, app); err != nil {
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	progressEmitter, err := setupProgress(ctx, app, app.progressRepo)
	if err != nil {
		return nil, err
	}

	searcher := setupSearcher(app)

	app.queue = queueMemory.NewQueue(cfg.Crawler.GlobalQueueDepth)
	app.dispatch, err = setupDispatcher(app, jobStore, blobStore, publisher, searcher, progressEmitter)
	if err != nil {
		return nil, err
	}

	var progressHandler *api.ProgressHandler
	if app.progressRepo != nil {
		progressHandler = api.NewProgressHandler(app.progressRepo, logger.Named("progress_api"))
	}

	app.apiServer = api.NewServer(
		jobStore,
		app.dispatch,
		searcher,
		uuid.New(),
		system.New(),
		progressHandler,
		*cfg,
		logger.Named("api"),
	)

	return app, nil
}

func setupSearcher(app *App) serp.Searcher {
	client := serp.NewClient(serp.ClientConfig{
		Endpoint:   app.cfg.SERP.Endpoint,
		APIKey:     app.cfg.SERP.APIKey,
		Timeout:    app.cfg.SERPTimeout(),
		MaxRetries: app.cfg.SERP.MaxRetries,
		Render:     app.cfg.SERP.Render,
	}, app.logger.Named("serp_client"))
	parser := serp.NewParser(app.logger.Named("serp_parser"))
	app.logger.Info("serp searcher initialized",
		zap.String("endpoint", app.cfg.SERP.Endpoint),
		zap.Int("concurrency", app.cfg.SERP.Concurrency),
	)
	return serp.NewPager(client, parser, app.cfg.SERP.Concurrency, app.logger.Named("serp_pager"))
}

func setupStorage(ctx context.Context, app *App) (lead.BlobStore, error) {
	var blobStore lead.BlobStore
	var err error
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Storage.GCSBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS storage backend", zap.String("bucket", app.cfg.Storage.GCSBucket))
	case "local":
		app.logger.Info("using local storage backend")
		blobStore, err = localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local storage backend", zap.String("path", app.cfg.Storage.LocalDir))
	default:
		app.logger.Info("using in-memory storage backend")
		blobStore = memoryStorage.NewBlobStore()
	}
	return blobStore, nil
}

func setupDatabase(ctx context.Context, app *App) error {
	if !app.cfg.DB.Enabled {
		app.logger.Info("database disabled, skipping lead archive and progress repository")
		return nil
	}
	var err error
	app.leadStore, err = pgstore.NewLeadStore(ctx, pgstore.LeadStoreConfig{
		DSN:      app.cfg.DB.DSN,
		Table:    app.cfg.DB.LeadsTable,
		MaxConns: int32(app.cfg.DB.MaxOpenConns),
		MinConns: int32(app.cfg.DB.MaxIdleConns),
	})
	if err != nil {
		return fmt.Errorf("lead store init failed: %w", err)
	}
	app.logger.Info("lead archive initialized", zap.String("table", app.cfg.DB.LeadsTable))
	app.progressRepo, err = pgstore.NewProgressStore(ctx, app.cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("progress store init failed: %w", err)
	}
	return nil
}

func setupPublisher(ctx context.Context, app *App) (lead.Publisher, error) {
	if !app.cfg.PubSub.Enabled {
		app.logger.Info("Pub/Sub disabled, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(app.cfg.PubSub.TopicName)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(app.pubsubPublisher), nil
}

func setupProgress(
	ctx context.Context,
	app *App,
	progressRepo store.ProgressRepository,
) (progress.Emitter, error) {
	if !app.cfg.Progress.Enabled {
		app.logger.Info("progress tracking disabled")
		return nil, nil
	}
	var sinkList []progress.Sink
	if progressRepo != nil {
		sinkList = append(
			sinkList,
			progresssinks.NewStoreSink(progressRepo, app.logger.Named("progress_store")),
		)
		app.logger.Debug("Added progress store sink")
	}
	if app.cfg.Progress.LogEnabled {
		sinkList = append(
			sinkList,
			progresssinks.NewLogSink(app.logger.Named("progress_log")),
		)
		app.logger.Debug("Added progress log sink")
	}
	promSink, err := progresssinks.NewPrometheusSink(nil)
	if err != nil {
		app.logger.Warn("prometheus progress sink init failed", zap.Error(err))
	} else {
		sinkList = append(sinkList, promSink)
		app.logger.Debug("Added progress prometheus sink")
	}
	if len(sinkList) == 0 {
		app.logger.Warn("progress tracking enabled but no sinks configured")
		return nil, nil
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.BatchSize,
		MaxBatchWait:   time.Duration(app.cfg.Progress.FlushIntervalMs) * time.Millisecond,
		SinkTimeout:    time.Duration(app.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    ctx,
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return app.progressHub, nil
}

func setupDispatcher(
	app *App,
	jobStore lead.JobStore,
	blobStore lead.BlobStore,
	publisher lead.Publisher,
	searcher serp.Searcher,
	progressEmitter progress.Emitter,
) (*dispatcher.Dispatcher, error) {
	hasher := sha256.New()
	clock := system.New()
	detect := detector.NewHeuristic(app.cfg.Headless.BodyThreshold)
	probeFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     app.cfg.Crawler.UserAgent,
		RespectRobots: app.cfg.Crawler.RespectRobots,
		Timeout:       app.cfg.FetchTimeout(),
	})
	app.logger.Info("using colly probe fetcher", zap.String("user_agent", app.cfg.Crawler.UserAgent))
	var headless lead.Fetcher
	if app.cfg.Headless.Enabled {
		var err error
		headless, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       app.cfg.Headless.MaxParallel,
			UserAgent:         app.cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(app.cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			app.logger.Warn("headless fetcher init failed, promotion disabled", zap.Error(err))
			headless = headlessfetcher.NewNoop()
		} else {
			app.logger.Info("using headless fetcher", zap.Int("max_parallel", app.cfg.Headless.MaxParallel))
		}
	}

	workerCfg := worker.Config{
		ContentType:   app.cfg.Storage.ContentType,
		BlobPrefix:    app.cfg.Storage.Prefix,
		Topic:         app.cfg.PubSub.TopicName,
		MaxSites:      app.cfg.Crawler.MaxSitesDefault,
		MaxKeywords:   app.cfg.Extract.MaxKeywords,
		MinConfidence: app.cfg.Extract.MinConfidence,
	}
	app.logger.Info("worker config",
		zap.String("content_type", workerCfg.ContentType),
		zap.String("blob_prefix", workerCfg.BlobPrefix),
		zap.String("topic", workerCfg.Topic),
		zap.Int("max_sites", workerCfg.MaxSites),
		zap.Float64("min_confidence", workerCfg.MinConfidence),
	)

	policy := simple.New(app.cfg.Crawler.DenyDomains)
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   app.cfg.Crawler.RateRPS,
		DefaultBurst: app.cfg.Crawler.RateBurst,
	})
	app.logger.Info("per-domain rate limiter enabled",
		zap.Float64("default_rps", app.cfg.Crawler.RateRPS),
		zap.Int("default_burst", app.cfg.Crawler.RateBurst),
	)

	var workers []*worker.Worker
	for i := 0; i < app.cfg.Crawler.Concurrency; i++ {
		w := worker.New(
			app.queue,
			jobStore,
			blobStore,
			publisher,
			hasher,
			clock,
			searcher,
			probeFetcher,
			headless,
			detect,
			policy,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		).WithRateLimiter(limiter)
		if app.leadStore != nil {
			w = w.WithArchiver(app.leadStore)
		}
		if progressEmitter != nil {
			w = w.WithProgress(progressEmitter)
		}
		workers = append(workers, w)
	}
	return dispatcher.New(app.queue, workers), nil
}
