// Package app wires the scraper together: one Badger connection shared by
// the store, the dedup cache and the job queue, a rate-limited fetch gateway,
// and the scheduler that drives the recurring scrape cycles.
package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/extract"
	"github.com/ternarybob/vigil/internal/fetch"
	"github.com/ternarybob/vigil/internal/ingest"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/queue"
	"github.com/ternarybob/vigil/internal/rescrape"
	"github.com/ternarybob/vigil/internal/scheduler"
	"github.com/ternarybob/vigil/internal/services/cache"
	"github.com/ternarybob/vigil/internal/services/events"
	"github.com/ternarybob/vigil/internal/services/heartbeat"
	badgerstore "github.com/ternarybob/vigil/internal/storage/badger"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	db             *badgerstore.BadgerDB
	StorageManager interfaces.StorageManager
	CacheService   interfaces.CacheService
	EventService   interfaces.EventService

	Fetcher   *fetch.Gateway
	Extractor *extract.Service

	QueueManager *queue.Manager
	WorkerPool   *queue.WorkerPool

	Pipeline  *ingest.Pipeline
	Rescraper *rescrape.Service

	HeartbeatService interfaces.HeartbeatService
	SchedulerService interfaces.SchedulerService
}

// New initializes the application with all dependencies.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	db, err := badgerstore.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.db = db

	// Storage, cache and queue share the one Badger connection
	app.StorageManager = badgerstore.NewManagerWithDB(db, logger)
	app.CacheService = cache.NewService(db, logger)
	app.EventService = events.NewService(logger)

	app.Fetcher, err = fetch.NewGateway(&cfg.Origin, logger)
	if err != nil {
		app.db.Close()
		return nil, fmt.Errorf("failed to create fetch gateway: %w", err)
	}
	app.Extractor = extract.NewService(logger)

	app.QueueManager, err = queue.NewManager(db, &cfg.Queue, logger)
	if err != nil {
		app.db.Close()
		return nil, fmt.Errorf("failed to create queue manager: %w", err)
	}
	app.WorkerPool = queue.NewWorkerPool(app.QueueManager, &cfg.Queue, logger)

	app.Rescraper = rescrape.NewService(
		app.StorageManager,
		app.QueueManager,
		app.Fetcher,
		app.Extractor,
		app.EventService,
		&cfg.Rescrape,
		logger,
	)

	cacheTTL := common.ParseDurationOr(cfg.Cache.TTL, 10*time.Minute)
	app.Pipeline = ingest.NewPipeline(
		app.StorageManager,
		app.CacheService,
		app.EventService,
		app.Rescraper,
		cacheTTL,
		logger,
	)

	app.HeartbeatService = heartbeat.NewService(&cfg.Heartbeat, logger)

	handlers := scheduler.NewHandlers(app.Fetcher, app.Extractor, app.Pipeline, app.Rescraper, &cfg.Origin, logger)
	app.SchedulerService = scheduler.NewService(
		app.QueueManager,
		app.WorkerPool,
		handlers,
		app.Rescraper,
		app.HeartbeatService,
		cfg,
		logger,
	)

	logger.Info().
		Str("origin", cfg.Origin.BaseURL).
		Str("data_dir", cfg.Storage.Badger.Path).
		Msg("Application initialized")

	return app, nil
}

// Start launches the scheduler, which arms the cron producers and the worker
// pool.
func (a *App) Start() error {
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Stop halts the scheduler and its workers. In-flight jobs left unconfirmed
// are redelivered after the visibility timeout on the next run.
func (a *App) Stop() {
	if err := a.SchedulerService.Stop(); err != nil {
		a.Logger.Warn().Err(err).Msg("Scheduler stop reported error")
	}
}

// Close releases the event bus and the database connection.
func (a *App) Close() {
	if err := a.EventService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Event service close reported error")
	}
	if err := a.db.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Database close reported error")
	}
	a.Logger.Info().Msg("Application closed")
}
