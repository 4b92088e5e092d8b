// Package scheduler is the job orchestrator: cron producers enqueue the
// recurring scrape cycles, the worker pool routes named jobs to their
// handlers, and the heartbeat fires after each successful recurring cycle.
// A producer skips its tick while the previous cycle is still in flight, so
// a stuck cycle delays but never stacks up.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/queue"
	"github.com/ternarybob/vigil/internal/rescrape"
)

// Service implements SchedulerService.
type Service struct {
	cron      *cron.Cron
	queue     interfaces.QueueManager
	pool      *queue.WorkerPool
	handlers  *Handlers
	rescraper *rescrape.Service
	heartbeat interfaces.HeartbeatService
	config    *common.Config
	logger    arbor.ILogger

	mu      sync.Mutex
	running bool
	// One in-flight guard per recurring job name
	inFlight map[string]*atomic.Bool
}

// NewService creates the orchestrator.
func NewService(
	queueMgr interfaces.QueueManager,
	pool *queue.WorkerPool,
	handlers *Handlers,
	rescraper *rescrape.Service,
	heartbeat interfaces.HeartbeatService,
	config *common.Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		cron:      cron.New(),
		queue:     queueMgr,
		pool:      pool,
		handlers:  handlers,
		rescraper: rescraper,
		heartbeat: heartbeat,
		config:    config,
		logger:    logger,
		inFlight:  make(map[string]*atomic.Bool),
	}
}

var _ interfaces.SchedulerService = (*Service)(nil)

// Start registers the job handlers, arms the cron producers and launches the
// worker pool.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.registerHandlers()

	producers := []struct {
		name     string
		schedule string
	}{
		{models.JobScrapeRecentPosts, s.config.Scrape.RecentSchedule},
		{models.JobScrapeRecentMerits, s.config.Scrape.MeritSchedule},
		{models.JobScrapeModLog, s.config.Scrape.ModLogSchedule},
	}
	for _, p := range producers {
		name := p.name
		s.inFlight[name] = &atomic.Bool{}
		if _, err := s.cron.AddFunc(p.schedule, func() { s.produce(name) }); err != nil {
			return fmt.Errorf("failed to arm producer %s: %w", name, err)
		}
		s.logger.Info().
			Str("job_name", name).
			Str("schedule", p.schedule).
			Msg("Producer armed")
	}

	sweepEvery := common.ParseDurationOr(s.config.Rescrape.SweepInterval, 30*time.Second)
	sweepSpec := fmt.Sprintf("@every %s", sweepEvery)
	if _, err := s.cron.AddFunc(sweepSpec, s.sweep); err != nil {
		return fmt.Errorf("failed to arm rescrape sweep: %w", err)
	}

	if err := s.pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().Msg("Scheduler started")
	return nil
}

// Stop halts the producers and drains the worker pool.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	if err := s.pool.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Worker pool stop reported error")
	}
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// registerHandlers binds every named job to its handler. Recurring cycles
// are wrapped so the producer guard releases and the heartbeat fires.
func (s *Service) registerHandlers() {
	s.pool.RegisterHandler(models.JobScrapeRecentPosts, s.recurring(models.JobScrapeRecentPosts, s.handlers.HandleRecentPosts))
	s.pool.RegisterHandler(models.JobScrapeRecentMerits, s.recurring(models.JobScrapeRecentMerits, s.handlers.HandleRecentMerits))
	s.pool.RegisterHandler(models.JobScrapeModLog, s.recurring(models.JobScrapeModLog, s.handlers.HandleModLog))
	s.pool.RegisterHandler(models.JobScrapeSinglePost, s.handlers.HandleSinglePost)
	s.pool.RegisterHandler(models.JobScrapeTopic, s.handlers.HandleTopic)
	s.pool.RegisterHandler(models.JobScrapeUserMerit, s.handlers.HandleUserMerit)
	s.pool.RegisterHandler(models.JobRescrapeDispatch, s.handlers.HandleRescrapeDispatch)
}

// produce enqueues one recurring cycle unless the previous one is still in
// flight.
func (s *Service) produce(name string) {
	guard := s.inFlight[name]
	if !guard.CompareAndSwap(false, true) {
		s.logger.Warn().
			Str("job_name", name).
			Msg("Previous cycle still in flight, skipping tick")
		return
	}

	if err := s.queue.Enqueue(context.Background(), models.QueueMessage{Name: name}); err != nil {
		guard.Store(false)
		s.logger.Error().Err(err).Str("job_name", name).Msg("Failed to enqueue cycle")
	}
}

// recurring wraps a cycle handler with the in-flight guard release and the
// post-success heartbeat.
func (s *Service) recurring(name string, handler queue.JobHandler) queue.JobHandler {
	return func(ctx context.Context, msg *models.QueueMessage) error {
		defer func() {
			if guard, ok := s.inFlight[name]; ok {
				guard.Store(false)
			}
		}()

		if err := handler(ctx, msg); err != nil {
			return err
		}
		s.heartbeat.Ping(ctx)
		return nil
	}
}

// sweep dispatches due rescrape entries.
func (s *Service) sweep() {
	if _, err := s.rescraper.Sweep(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("Rescrape sweep failed")
	}
}
