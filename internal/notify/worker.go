package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/EloyM96/avisor/internal/common"
	"github.com/EloyM96/avisor/internal/models"
	"github.com/EloyM96/avisor/internal/queue"
)

// Worker turns queued dispatch messages back into live deliveries.
// Delivery failures are already audited by the dispatcher, so the
// handler reports them without requeueing.
type Worker struct {
	dispatcher *Dispatcher
	queueName  string
	logger     arbor.ILogger
}

func NewWorker(dispatcher *Dispatcher, queueName string, logger arbor.ILogger) *Worker {
	return &Worker{
		dispatcher: dispatcher,
		queueName:  queueName,
		logger:     logger,
	}
}

// Register binds the dispatch handler on the pool under the
// dispatcher's job name.
func (w *Worker) Register(pool *queue.WorkerPool) {
	pool.RegisterHandler(w.dispatcher.JobName(), w.Handle)
}

// Handle processes one queued dispatch message
func (w *Worker) Handle(ctx context.Context, msg *models.QueueMessage) error {
	var payload models.JobPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decoding dispatch payload: %w", err)
	}

	jobID := payload.JobID
	if jobID == "" {
		jobID = msg.JobID
	}
	if jobID == "" {
		jobID = common.NewJobID()
	}

	action := models.ActionFromMap(payload.Action)

	w.logger.Info().
		Str("job_id", jobID).
		Str("job_name", w.dispatcher.JobName()).
		Str("queue_name", w.queueName).
		Str("channel", action.ChannelKey()).
		Str("playbook", payload.Playbook).
		Msg("worker.job.start")

	result, err := w.dispatcher.Deliver(ctx, DeliveryRequest{
		Playbook:    payload.Playbook,
		Action:      action,
		Row:         payload.Row,
		RuleResults: payload.RuleResults,
		JobID:       jobID,
		JobName:     w.dispatcher.JobName(),
		QueueName:   w.queueName,
	})
	if err != nil {
		var notFound *AdapterNotFoundError
		if errors.As(err, &notFound) {
			w.logger.Error().Err(err).
				Str("job_id", jobID).
				Msg("worker.job.adapter_missing")
		}
		return err
	}

	w.logger.Info().
		Str("job_id", jobID).
		Str("status", string(result.Status)).
		Msg("worker.job.completed")
	return nil
}
