package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
)

// JobHandler processes one queue message.
type JobHandler func(ctx context.Context, msg *models.QueueMessage) error

// WorkerPool runs a fixed set of workers polling the queue and routing
// messages to named handlers. A failed handler leaves the message in the
// queue: the visibility timeout redelivers it until max receives
// dead-letters it.
type WorkerPool struct {
	manager      *Manager
	handlers     map[string]JobHandler
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(manager *Manager, config *common.QueueConfig, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &WorkerPool{
		manager:      manager,
		handlers:     make(map[string]JobHandler),
		concurrency:  concurrency,
		pollInterval: common.ParseDurationOr(config.PollInterval, time.Second),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers a handler for a job name. Registration happens
// at wiring time, before Start.
func (wp *WorkerPool) RegisterHandler(name string, handler JobHandler) {
	wp.handlers[name] = handler
	wp.logger.Debug().
		Str("job_name", name).
		Msg("Job handler registered")
}

// Start starts the worker pool
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		go wp.worker(i)
	}
	return nil
}

// Stop gracefully stops the worker pool
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	return nil
}

func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to spread poll load across the interval
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		time.Sleep(staggerDelay)
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil {
				if !errors.Is(err, models.ErrNoMessage) {
					wp.logger.Warn().
						Err(err).
						Int("worker_id", workerID).
						Msg("Error processing message")
				}
			}
		}
	}
}

// processMessage receives and processes a single message.
func (wp *WorkerPool) processMessage(workerID int) error {
	msg, deleteFn, err := wp.manager.Receive(wp.ctx)
	if err != nil {
		return err
	}

	handler, exists := wp.handlers[msg.Name]
	if !exists {
		wp.logger.Error().
			Str("name", msg.Name).
			Str("job_id", msg.JobID).
			Msg("No handler registered for job, dropping message")
		if delErr := deleteFn(); delErr != nil {
			wp.logger.Warn().Err(delErr).Msg("Failed to delete unroutable message")
		}
		return nil
	}

	wp.logger.Debug().
		Str("job_id", msg.JobID).
		Str("name", msg.Name).
		Int("worker_id", workerID).
		Msg("Processing message")

	startTime := time.Now()
	if err := handler(wp.ctx, msg); err != nil {
		// Leave the message in place; visibility timeout redelivers it
		wp.logger.Error().
			Err(err).
			Str("job_id", msg.JobID).
			Str("name", msg.Name).
			Dur("duration", time.Since(startTime)).
			Int("worker_id", workerID).
			Msg("Job handler failed, message will be redelivered")
		return err
	}

	wp.logger.Info().
		Str("job_id", msg.JobID).
		Str("name", msg.Name).
		Dur("duration", time.Since(startTime)).
		Int("worker_id", workerID).
		Msg("Job completed")

	if err := deleteFn(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("job_id", msg.JobID).
			Msg("Failed to delete message after successful processing")
		return err
	}
	return nil
}
