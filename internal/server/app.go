// Package server provides the application composition root: it builds the
// stores, queue, extraction stack, and worker pool from configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/headline-scraper/internal/api"
	"github.com/JakeFAU/headline-scraper/internal/archive"
	"github.com/JakeFAU/headline-scraper/internal/classify"
	"github.com/JakeFAU/headline-scraper/internal/clock/system"
	"github.com/JakeFAU/headline-scraper/internal/config"
	"github.com/JakeFAU/headline-scraper/internal/database"
	"github.com/JakeFAU/headline-scraper/internal/dedupe"
	"github.com/JakeFAU/headline-scraper/internal/dispatcher"
	"github.com/JakeFAU/headline-scraper/internal/embedding"
	"github.com/JakeFAU/headline-scraper/internal/extract"
	"github.com/JakeFAU/headline-scraper/internal/extract/secondary"
	collyfetcher "github.com/JakeFAU/headline-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/headline-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/headline-scraper/internal/id/uuid"
	"github.com/JakeFAU/headline-scraper/internal/llm"
	"github.com/JakeFAU/headline-scraper/internal/llm/claude"
	"github.com/JakeFAU/headline-scraper/internal/llm/gemini"
	"github.com/JakeFAU/headline-scraper/internal/metrics"
	"github.com/JakeFAU/headline-scraper/internal/notify"
	memorypublisher "github.com/JakeFAU/headline-scraper/internal/notify/memory"
	gcppublisher "github.com/JakeFAU/headline-scraper/internal/notify/pubsub"
	"github.com/JakeFAU/headline-scraper/internal/pipeline"
	"github.com/JakeFAU/headline-scraper/internal/prompts"
	queuemem "github.com/JakeFAU/headline-scraper/internal/queue/memory"
	pgqueue "github.com/JakeFAU/headline-scraper/internal/queue/postgres"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
	gcsstorage "github.com/JakeFAU/headline-scraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/headline-scraper/internal/storage/local"
	memorystorage "github.com/JakeFAU/headline-scraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/headline-scraper/internal/storage/postgres"
	"github.com/JakeFAU/headline-scraper/internal/summarize"
	"github.com/JakeFAU/headline-scraper/internal/telemetry"
	memoryindex "github.com/JakeFAU/headline-scraper/internal/vector/memory"
	"github.com/JakeFAU/headline-scraper/internal/vector/pgvector"
	"github.com/JakeFAU/headline-scraper/internal/worker"
)

// stores groups the repositories one backend provides.
type stores struct {
	registry scrape.DedupeRegistry
	articles scrape.ArticleStore
	sources  scrape.SourceStore
	prompts  scrape.PromptStore
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  scrape.Clock

	pool   *pgxpool.Pool
	queue  scrape.JobQueue
	stores stores

	renderer        *headless.Renderer
	storageClient   *storage.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	tracerShutdown  telemetry.ShutdownFunc
}

// Build connects the database (when configured) and selects the queue and
// stores. The extraction stack is built on demand by Dispatcher.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger, clock: system.New()}
	logger.Info("building application dependencies",
		zap.String("queue_backend", cfg.Queue.Backend),
		zap.Int("worker_concurrency", cfg.Worker.Concurrency),
		zap.Bool("secondary_enabled", cfg.SecondaryEnabled()),
	)

	if cfg.Metrics.Enabled {
		metrics.Init()
	}
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = shutdown

	if err := app.setupDatabase(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	if err := app.setupQueue(); err != nil {
		app.Close(ctx)
		return nil, err
	}
	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Queue returns the configured job queue.
func (a *App) Queue() scrape.JobQueue {
	return a.queue
}

// Serve runs the HTTP API alongside the worker pool until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	dispatch, err := a.Dispatcher(ctx)
	if err != nil {
		return err
	}
	apiServer := api.NewServer(a.queue, a.ready, api.Config{
		APIKey:         a.apiKey(),
		RequestTimeout: a.cfg.Server.RequestTimeout,
		ExposeMetrics:  a.cfg.Metrics.Enabled,
	}, a.logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("dispatcher started")
		dispatch.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

// Work runs the worker pool without the HTTP API until ctx is canceled.
func (a *App) Work(ctx context.Context) error {
	dispatch, err := a.Dispatcher(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("dispatcher started")
	dispatch.Run(ctx)
	return nil
}

// Sweep fails jobs whose lease has expired once and reports how many were swept.
func (a *App) Sweep(ctx context.Context) (int64, error) {
	d := dispatcher.New(a.queue, nil, nil, a.clock, a.dispatcherConfig(), a.logger)
	return d.Sweep(ctx)
}

// Dispatcher builds the extraction stack, the job handlers, and the worker pool.
func (a *App) Dispatcher(ctx context.Context) (*dispatcher.Dispatcher, error) {
	registry, err := dedupe.New(a.stores.registry, a.cfg.Worker.DedupeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("dedupe cache init failed: %w", err)
	}

	extractor, lister, err := a.setupExtraction(ctx)
	if err != nil {
		return nil, err
	}

	gen, embedder, err := a.setupLLM(ctx)
	if err != nil {
		return nil, err
	}
	catalog := prompts.New(a.stores.prompts, a.clock, a.cfg.Prompts.RefreshInterval, a.logger)
	if err := catalog.Validate(ctx); err != nil {
		a.logger.Warn("prompt catalog incomplete; affected articles will fail", zap.Error(err))
	}

	index, err := a.setupVectorIndex()
	if err != nil {
		return nil, err
	}
	embedSvc := embedding.New(embedding.Config{
		Enabled:     a.cfg.Embedding.Enabled,
		Namespace:   a.cfg.Embedding.Namespace,
		Concurrency: a.cfg.Embedding.Concurrency,
		Timeout:     a.cfg.Embedding.Timeout,
	}, embedder, index, a.stores.articles, a.logger)

	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	keys := pipeline.NewKeyRing()
	handlers := map[scrape.JobType]pipeline.Handler{
		scrape.JobTypeArticle: pipeline.NewArticleHandler(pipeline.ArticleDeps{
			Registry:   registry,
			Articles:   a.stores.articles,
			Extractor:  extractor,
			Classifier: classify.New(gen, catalog, a.logger),
			Summarizer: summarize.New(gen, catalog, a.clock, a.logger),
			Embedder:   embedSvc,
			Notifier:   notify.New(publisher, a.cfg.Notify.Topic, a.clock, a.logger),
			Keys:       keys,
		}, a.logger),
		scrape.JobTypeSource: pipeline.NewSourceHandler(pipeline.SourceDeps{
			Sources:  a.stores.sources,
			Registry: registry,
			Queue:    a.queue,
			Harvester: collyfetcher.New(collyfetcher.Config{
				UserAgent:     a.cfg.Extract.Harvest.UserAgent,
				RespectRobots: a.cfg.Extract.Harvest.RespectRobots,
				Timeout:       a.cfg.Extract.Harvest.Timeout,
			}),
			Lister: lister,
			Clock:  a.clock,
			Keys:   keys,
		}, pipeline.SourceConfig{
			DefaultLimit:      a.cfg.Worker.SourceLimit,
			RequireSameRegion: a.cfg.Worker.RequireSameRegion,
		}, a.logger),
		scrape.JobTypeBatch: pipeline.NewBatchHandler(a.stores.sources, a.queue, a.cfg.Worker.SourceLimit, a.logger),
	}

	hostname, _ := os.Hostname()
	ids := uuid.New(hostname)
	workers := make([]*worker.Worker, 0, a.cfg.Worker.Concurrency)
	for i := 0; i < a.cfg.Worker.Concurrency; i++ {
		id, err := ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("worker id: %w", err)
		}
		workers = append(workers, worker.New(a.queue, handlers, worker.Config{
			ID:           id,
			PollInterval: a.cfg.Worker.PollInterval,
		}, a.logger.With(zap.Int("index", i))))
	}
	a.logger.Info("worker pool built", zap.Int("workers", len(workers)))
	return dispatcher.New(a.queue, workers, embedSvc, a.clock, a.dispatcherConfig(), a.logger), nil
}

// Close releases every client the app opened.
func (a *App) Close(ctx context.Context) {
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

func (a *App) ready(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (a *App) apiKey() string {
	if !a.cfg.Auth.Enabled {
		return ""
	}
	return a.cfg.Auth.APIKey
}

func (a *App) dispatcherConfig() dispatcher.Config {
	return dispatcher.Config{
		LeaseTimeout:  a.cfg.Queue.LeaseTimeout,
		SweepInterval: a.cfg.Queue.SweepInterval,
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN configured; using in-memory stores")
		mem := memorystorage.NewStore(a.clock)
		a.stores = stores{registry: mem, articles: mem, sources: mem, prompts: mem}
		return nil
	}
	pool, err := database.Connect(ctx, database.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		RegisterVector:  a.cfg.Embedding.Enabled,
	})
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	a.pool = pool
	store, err := pgstore.New(pool, a.clock)
	if err != nil {
		return fmt.Errorf("store init failed: %w", err)
	}
	a.stores = stores{registry: store, articles: store, sources: store, prompts: store}
	a.logger.Info("postgres stores initialized")
	return nil
}

func (a *App) setupQueue() error {
	switch a.cfg.Queue.Backend {
	case config.BackendPostgres:
		if a.pool == nil {
			return fmt.Errorf("postgres queue requires db.dsn")
		}
		q, err := pgqueue.New(a.pool, a.cfg.DB.JobsTable)
		if err != nil {
			return fmt.Errorf("queue init failed: %w", err)
		}
		a.queue = q
		a.logger.Info("using postgres job queue", zap.String("table", a.cfg.DB.JobsTable))
	default:
		a.queue = queuemem.NewQueue(a.clock)
		a.logger.Info("using in-memory job queue")
	}
	return nil
}

func (a *App) setupExtraction(ctx context.Context) (*extract.Pipeline, pipeline.LinkLister, error) {
	var renderer scrape.Renderer = headless.Disabled{}
	if a.cfg.Extract.Render.Enabled {
		r, err := headless.NewChromedp(headless.Config{
			MaxParallel:       a.cfg.Extract.Render.MaxParallel,
			UserAgent:         a.cfg.Extract.Render.UserAgent,
			NavigationTimeout: a.cfg.Extract.Render.NavigationTimeout,
			ExecPath:          a.cfg.Extract.Render.ExecPath,
		})
		if err != nil {
			a.logger.Warn("headless renderer init failed; falling back to secondary extraction", zap.Error(err))
		} else {
			a.renderer = r
			renderer = r
			a.logger.Info("using headless renderer", zap.Int("max_parallel", a.cfg.Extract.Render.MaxParallel))
		}
	}

	var opts []extract.Option
	var lister pipeline.LinkLister
	if a.cfg.SecondaryEnabled() {
		client, err := secondary.New(secondary.Config{
			BaseURL: a.cfg.Extract.Secondary.BaseURL,
			Keys:    a.cfg.Extract.Secondary.Keys,
			Timeout: a.cfg.Extract.Secondary.Timeout,
			RPS:     a.cfg.Extract.Secondary.RPS,
			Burst:   a.cfg.Extract.Secondary.Burst,
		}, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("secondary client init failed: %w", err)
		}
		opts = append(opts, extract.WithFallback(client))
		lister = client
		a.logger.Info("secondary extractor enabled", zap.Int("keys", len(a.cfg.Extract.Secondary.Keys)))
	}

	blobs, err := a.setupArchive(ctx)
	if err != nil {
		return nil, nil, err
	}
	if blobs != nil {
		opts = append(opts, extract.WithArchiver(archive.New(blobs)))
	}

	reader := extract.NewReadability(a.cfg.Extract.MinTextLength)
	return extract.NewPipeline(renderer, reader, a.logger, opts...), lister, nil
}

func (a *App) setupArchive(ctx context.Context) (scrape.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storageClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Archive.GCSBucket,
			Prefix: a.cfg.Archive.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving raw html to gcs", zap.String("bucket", a.cfg.Archive.GCSBucket))
		return blobs, nil
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving raw html locally", zap.String("path", a.cfg.Archive.LocalDir))
		return blobs, nil
	case config.BackendMemory:
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupLLM(ctx context.Context) (*llm.Router, scrape.Embedder, error) {
	router := llm.NewRouter(a.cfg.LLM.DefaultModel)
	var embedder scrape.Embedder
	if a.cfg.LLM.Gemini.APIKey != "" {
		client, err := gemini.New(ctx, gemini.Config{
			APIKey:         a.cfg.LLM.Gemini.APIKey,
			Model:          a.cfg.LLM.Gemini.Model,
			EmbedModel:     a.cfg.LLM.Gemini.EmbedModel,
			EmbedDimension: a.cfg.LLM.Gemini.EmbedDimension,
			Temperature:    a.cfg.LLM.Gemini.Temperature,
			BaseURL:        a.cfg.LLM.Gemini.BaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gemini client init failed: %w", err)
		}
		router.Register(llm.ProviderGemini, client)
		embedder = client
	}
	if a.cfg.LLM.Anthropic.APIKey != "" {
		client, err := claude.New(claude.Config{
			APIKey:    a.cfg.LLM.Anthropic.APIKey,
			Model:     a.cfg.LLM.Anthropic.Model,
			MaxTokens: a.cfg.LLM.Anthropic.MaxTokens,
			BaseURL:   a.cfg.LLM.Anthropic.BaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("claude client init failed: %w", err)
		}
		router.Register(llm.ProviderClaude, client)
	}
	if embedder == nil {
		a.logger.Warn("no gemini api key; embeddings disabled")
	}
	return router, embedder, nil
}

func (a *App) setupVectorIndex() (scrape.VectorIndex, error) {
	if !a.cfg.Embedding.Enabled {
		return nil, nil
	}
	if a.pool == nil {
		return memoryindex.New(), nil
	}
	index, err := pgvector.New(a.pool, a.cfg.Embedding.Table, a.cfg.LLM.Gemini.EmbedDimension, a.clock)
	if err != nil {
		return nil, fmt.Errorf("vector index init failed: %w", err)
	}
	return index, nil
}

func (a *App) setupPublisher(ctx context.Context) (scrape.Publisher, error) {
	switch a.cfg.Notify.Backend {
	case config.BackendPubSub:
		client, err := pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.pubsubPublisher = gcppublisher.New(client)
		a.logger.Info("pubsub publisher initialized",
			zap.String("project", a.cfg.Notify.ProjectID),
			zap.String("topic", a.cfg.Notify.Topic),
		)
		return a.pubsubPublisher, nil
	case config.BackendMemory:
		return memorypublisher.New(), nil
	default:
		return nil, nil
	}
}
