package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/EloyM96/avisor/internal/models"
)

// Handler processes one queued message. Returning an error marks the
// delivery attempt as failed; the message is removed either way because
// the dispatcher audits failures as new rows rather than retrying.
type Handler func(ctx context.Context, msg *models.QueueMessage) error

// WorkerPool polls the queue with a fixed number of workers and routes
// messages to the handler registered for their job name.
type WorkerPool struct {
	manager      *Manager
	handlers     map[string]Handler
	pollInterval time.Duration
	concurrency  int
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewWorkerPool(manager *Manager, pollInterval time.Duration, concurrency int, logger arbor.ILogger) *WorkerPool {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		manager:      manager,
		handlers:     make(map[string]Handler),
		pollInterval: pollInterval,
		concurrency:  concurrency,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler binds a job name to a handler
func (wp *WorkerPool) RegisterHandler(jobName string, handler Handler) {
	wp.handlers[jobName] = handler
	wp.logger.Debug().
		Str("job_name", jobName).
		Msg("Job handler registered")
}

// Start launches the worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Str("queue", wp.manager.Name()).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		go wp.worker(i)
	}
}

// Stop cancels the pool context and lets workers drain
func (wp *WorkerPool) Stop() {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
}

func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to reduce database lock contention
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
				if errors.Is(err, ErrNoMessage) {
					continue
				}
				errMsg := err.Error()
				// SQLITE_BUSY is expected under concurrency and retries on the next poll
				if strings.Contains(errMsg, "database is locked") || strings.Contains(errMsg, "SQLITE_BUSY") {
					continue
				}
				wp.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Msg("Error processing message")
			}
		}
	}
}

func (wp *WorkerPool) processMessage(workerID int) error {
	msg, deleteFn, err := wp.manager.Receive(wp.ctx)
	if err != nil {
		return err
	}

	handler, exists := wp.handlers[msg.Name]
	if !exists {
		wp.logger.Error().
			Str("job_name", msg.Name).
			Str("job_id", msg.JobID).
			Msg("No handler registered for job name")
		if delErr := deleteFn(); delErr != nil {
			wp.logger.Warn().Err(delErr).Msg("Failed to delete unhandled message")
		}
		return nil
	}

	start := time.Now()
	handlerErr := handler(wp.ctx, msg)
	duration := time.Since(start)

	if handlerErr != nil {
		wp.logger.Error().
			Err(handlerErr).
			Str("job_id", msg.JobID).
			Str("job_name", msg.Name).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job handler failed")
	} else {
		wp.logger.Info().
			Str("job_id", msg.JobID).
			Str("job_name", msg.Name).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job completed")
	}

	// The handler audits its own outcome; failed deliveries are not retried
	if err := deleteFn(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("job_id", msg.JobID).
			Msg("Failed to delete message after processing")
		return err
	}

	return handlerErr
}
