package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/EloyM96/avisor/internal/common"
	"github.com/EloyM96/avisor/internal/interfaces"
	"github.com/EloyM96/avisor/internal/models"
	"github.com/EloyM96/avisor/internal/notify/adapters"
)

// DefaultJobName identifies dispatch jobs on the queue and in the audit
// trail when no override is configured.
const DefaultJobName = "app.notify.worker.dispatch"

// DispatcherOptions collects the dispatcher collaborators. Queue, Audit
// and QuietHours are optional: a nil queue selects inline delivery, a
// nil audit repository disables persistence and nil quiet hours never
// pause anything.
type DispatcherOptions struct {
	Queue      interfaces.NotificationQueue
	QuietHours *models.QuietHours
	Adapters   *adapters.Registry
	Audit      interfaces.AuditRepository
	JobName    string
	Now        func() time.Time
	Logger     arbor.ILogger
}

// Dispatcher renders notify actions against evaluated rows and routes
// them inline, to the queue, or to the audit trail only (dry runs and
// quiet hours).
type Dispatcher struct {
	queue      interfaces.NotificationQueue
	quietHours *models.QuietHours
	adapters   *adapters.Registry
	audit      interfaces.AuditRepository
	jobName    string
	now        func() time.Time
	logger     arbor.ILogger
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Adapters == nil {
		opts.Adapters = adapters.NewRegistry()
	}
	if opts.JobName == "" {
		opts.JobName = DefaultJobName
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = common.GetLogger()
	}
	return &Dispatcher{
		queue:      opts.Queue,
		quietHours: opts.QuietHours,
		adapters:   opts.Adapters,
		audit:      opts.Audit,
		jobName:    opts.JobName,
		now:        opts.Now,
		logger:     opts.Logger,
	}
}

// JobName returns the queue job name used for dispatch jobs
func (d *Dispatcher) JobName() string {
	return d.jobName
}

// Dispatch walks every evaluated row against every notify action and
// returns per-channel counters. Guard or template failures abort the
// run with the partial summary.
func (d *Dispatcher) Dispatch(ctx context.Context, rows []models.EvaluatedRow, actions []models.Action, dryRun bool, playbook string) (models.DispatchSummary, error) {
	summary := models.DispatchSummary{}
	for _, item := range rows {
		renderCtx := RenderContext(item.Row, item.RuleResults)
		for _, action := range actions {
			if !action.IsNotify() {
				continue
			}
			match, err := ShouldDispatch(action.When, renderCtx)
			if err != nil {
				return summary, fmt.Errorf("error al evaluar la condición de la acción: %w", err)
			}
			if !match {
				continue
			}

			rendered, err := RenderAction(action, renderCtx)
			if err != nil {
				return summary, err
			}
			channel := rendered.ChannelKey()
			stats := summary.Channel(channel)
			stats.Matches++
			recipient := rendered.To()

			if dryRun {
				d.recordDryRun(ctx, playbook, rendered, item)
				continue
			}

			if d.quietHours != nil && !d.quietHours.Allows(d.now()) {
				stats.SkippedQuietHours++
				jobID := common.NewJobID()
				pausedPayload := auditPayload(playbook, rendered, item.Row, item.RuleResults)
				pausedPayload["job_id"] = jobID
				d.recordAudit(ctx, &models.NotificationAuditEntry{
					Playbook:  playbook,
					Channel:   channel,
					Adapter:   d.adapters.Label(channel),
					Recipient: recipient,
					Subject:   rendered.Subject(),
					Status:    models.StatusQuietHours,
					Payload:   pausedPayload,
					JobID:     jobID,
					JobName:   d.jobName,
					QueueName: d.queueLabel(),
				})
				continue
			}

			if d.queue == nil {
				result, err := d.Deliver(ctx, DeliveryRequest{
					Playbook:    playbook,
					Action:      rendered,
					Row:         item.Row,
					RuleResults: item.RuleResults,
					JobID:       common.NewJobID(),
					JobName:     d.jobName,
					QueueName:   d.queueLabel(),
				})
				if err != nil {
					var notFound *AdapterNotFoundError
					var failed *DeliveryError
					if errors.As(err, &notFound) || errors.As(err, &failed) {
						stats.Errors++
						continue
					}
					return summary, err
				}
				switch result.Status {
				case models.StatusSent:
					stats.Enqueued++
				case models.StatusError:
					stats.Errors++
				}
				continue
			}

			jobID := common.NewJobID()
			queueName := d.queueLabel()
			payload := models.JobPayload{
				Playbook:    playbook,
				Action:      rendered.AsMap(),
				Row:         item.Row,
				RuleResults: item.RuleResults,
				JobID:       jobID,
			}
			raw, err := json.Marshal(payload)
			if err != nil {
				return summary, fmt.Errorf("serializing job payload: %w", err)
			}
			if err := d.queue.Enqueue(ctx, models.QueueMessage{Name: d.jobName, Payload: raw, JobID: jobID}); err != nil {
				stats.Errors++
				d.logger.Error().Err(err).
					Str("job_id", jobID).
					Str("channel", channel).
					Msg("notification.queue.enqueue_failed")
				continue
			}

			d.logger.Info().
				Str("job_id", jobID).
				Str("job_name", d.jobName).
				Str("queue_name", queueName).
				Str("channel", channel).
				Str("playbook", playbook).
				Str("recipient", recipient).
				Msg("notification.queue.enqueued")

			queuedPayload := auditPayload(playbook, rendered, item.Row, item.RuleResults)
			queuedPayload["job_id"] = jobID
			d.recordAudit(ctx, &models.NotificationAuditEntry{
				Playbook:  playbook,
				Channel:   channel,
				Adapter:   d.adapters.Label(channel),
				Recipient: recipient,
				Subject:   rendered.Subject(),
				Status:    models.StatusQueued,
				Payload:   queuedPayload,
				JobID:     jobID,
				JobName:   d.jobName,
				QueueName: queueName,
			})
			stats.Enqueued++
		}
	}
	return summary, nil
}

// DeliveryRequest carries one rendered action into Deliver. Empty job
// fields fall back to the dispatcher defaults.
type DeliveryRequest struct {
	Playbook    string
	Action      models.Action
	Row         map[string]any
	RuleResults map[string]bool
	DryRun      bool
	JobID       string
	JobName     string
	QueueName   string
}

// DeliveryResult reports the outcome of one Deliver call
type DeliveryResult struct {
	Status   models.NotificationStatus
	Response map[string]any
}

// Deliver pushes a single rendered action through its channel adapter
// and audits the outcome. It returns AdapterNotFoundError when the
// channel has no adapter and DeliveryError when the adapter fails.
func (d *Dispatcher) Deliver(ctx context.Context, req DeliveryRequest) (*DeliveryResult, error) {
	channel := req.Action.ChannelKey()
	adapter, ok := d.adapters.Get(channel)
	if !ok {
		return nil, &AdapterNotFoundError{Channel: channel}
	}
	adapterName := adapter.Name()
	recipient := req.Action.To()
	subject := req.Action.Subject()

	jobID := req.JobID
	if jobID == "" {
		jobID = common.NewJobID()
	}
	jobName := req.JobName
	if jobName == "" {
		jobName = d.jobName
	}
	queueName := req.QueueName
	if queueName == "" {
		queueName = d.queueLabel()
	}

	payload := auditPayload(req.Playbook, req.Action, req.Row, req.RuleResults)
	payload["job_id"] = jobID

	d.logger.Info().
		Str("job_id", jobID).
		Str("job_name", jobName).
		Str("queue_name", queueName).
		Str("channel", channel).
		Str("adapter", adapterName).
		Str("playbook", req.Playbook).
		Bool("dry_run", req.DryRun).
		Str("recipient", recipient).
		Msg("notification.deliver.start")

	if req.DryRun {
		d.recordAudit(ctx, &models.NotificationAuditEntry{
			Playbook:  req.Playbook,
			Channel:   channel,
			Adapter:   adapterName,
			Recipient: recipient,
			Subject:   subject,
			Status:    models.StatusDryRun,
			Payload:   payload,
			JobID:     jobID,
			JobName:   jobName,
			QueueName: queueName,
		})
		d.logger.Info().Str("job_id", jobID).Str("playbook", req.Playbook).Msg("notification.deliver.dry_run")
		return &DeliveryResult{Status: models.StatusDryRun}, nil
	}

	response, err := adapter.Send(ctx, adapterPayload(req.Playbook, req.Action, req.Row, req.RuleResults))
	if err != nil {
		d.recordAudit(ctx, &models.NotificationAuditEntry{
			Playbook:  req.Playbook,
			Channel:   channel,
			Adapter:   adapterName,
			Recipient: recipient,
			Subject:   subject,
			Status:    models.StatusError,
			Payload:   payload,
			Error:     err.Error(),
			JobID:     jobID,
			JobName:   jobName,
			QueueName: queueName,
		})
		d.logger.Error().Err(err).
			Str("job_id", jobID).
			Str("playbook", req.Playbook).
			Msg("notification.deliver.error")
		return nil, &DeliveryError{Channel: channel, Adapter: adapterName, Err: err}
	}

	mapped := ensureMapping(response)
	d.recordAudit(ctx, &models.NotificationAuditEntry{
		Playbook:  req.Playbook,
		Channel:   channel,
		Adapter:   adapterName,
		Recipient: recipient,
		Subject:   subject,
		Status:    models.StatusSent,
		Payload:   payload,
		Response:  mapped,
		JobID:     jobID,
		JobName:   jobName,
		QueueName: queueName,
	})
	d.logger.Info().
		Str("job_id", jobID).
		Str("playbook", req.Playbook).
		Msg("notification.deliver.success")
	return &DeliveryResult{Status: models.StatusSent, Response: mapped}, nil
}

// recordDryRun audits a simulated delivery. A channel without an
// adapter still leaves a dry_run row so previews show the gap.
func (d *Dispatcher) recordDryRun(ctx context.Context, playbook string, action models.Action, item models.EvaluatedRow) {
	if d.audit == nil {
		return
	}
	_, err := d.Deliver(ctx, DeliveryRequest{
		Playbook:    playbook,
		Action:      action,
		Row:         item.Row,
		RuleResults: item.RuleResults,
		DryRun:      true,
	})
	var notFound *AdapterNotFoundError
	if errors.As(err, &notFound) {
		channel := action.ChannelKey()
		d.recordAudit(ctx, &models.NotificationAuditEntry{
			Playbook:  playbook,
			Channel:   channel,
			Adapter:   d.adapters.Label(channel),
			Recipient: action.To(),
			Subject:   action.Subject(),
			Status:    models.StatusDryRun,
			Payload:   auditPayload(playbook, action, item.Row, item.RuleResults),
			Error:     "adaptador no configurado",
		})
	}
}

// recordAudit persists an audit entry. Persistence failures are logged
// and never abort the dispatch loop.
func (d *Dispatcher) recordAudit(ctx context.Context, entry *models.NotificationAuditEntry) {
	if d.audit == nil {
		return
	}
	if _, err := d.audit.Add(ctx, entry); err != nil {
		d.logger.Error().Err(err).
			Str("channel", entry.Channel).
			Str("status", string(entry.Status)).
			Msg("notification.audit.failed")
	}
}

func (d *Dispatcher) queueLabel() string {
	if d.queue == nil {
		return "inline"
	}
	return d.queue.Name()
}
