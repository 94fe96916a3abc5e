package models

import "time"

// NotificationStatus is the terminal state of one notification attempt
type NotificationStatus string

// NotificationStatus constants
const (
	StatusDryRun     NotificationStatus = "dry_run"
	StatusQueued     NotificationStatus = "queued"
	StatusQuietHours NotificationStatus = "quiet_hours"
	StatusSent       NotificationStatus = "sent"
	StatusError      NotificationStatus = "error"
)

// JobStatus is the lifecycle state of a correlated notification job
type JobStatus string

// JobStatus constants
const (
	JobQueued    JobStatus = "queued"
	JobDryRun    JobStatus = "dry_run"
	JobPaused    JobStatus = "paused"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// MapJobStatus translates a notification status into the job status
// recorded on the linked Job row
func MapJobStatus(status NotificationStatus) JobStatus {
	switch status {
	case StatusQueued:
		return JobQueued
	case StatusDryRun:
		return JobDryRun
	case StatusQuietHours:
		return JobPaused
	case StatusSent:
		return JobSucceeded
	case StatusError:
		return JobFailed
	default:
		return JobStatus(status)
	}
}

// NotificationAuditEntry is the structured payload used to persist one
// notification attempt. Audit rows are immutable after insertion; new
// attempts for the same job produce new rows.
type NotificationAuditEntry struct {
	Playbook  string             `json:"playbook,omitempty"`
	Channel   string             `json:"channel"`
	Adapter   string             `json:"adapter"`
	Recipient string             `json:"recipient,omitempty"`
	Subject   string             `json:"subject,omitempty"`
	Status    NotificationStatus `json:"status"`
	Payload   map[string]any     `json:"payload"`
	Response  map[string]any     `json:"response,omitempty"`
	Error     string             `json:"error,omitempty"`
	JobID     string             `json:"job_id,omitempty"`
	JobName   string             `json:"job_name,omitempty"`
	QueueName string             `json:"queue_name,omitempty"`
}

// Notification is a persisted audit row
type Notification struct {
	ID        int64              `json:"id"`
	Playbook  string             `json:"playbook,omitempty"`
	Channel   string             `json:"channel"`
	Adapter   string             `json:"adapter"`
	Recipient string             `json:"recipient,omitempty"`
	Subject   string             `json:"subject,omitempty"`
	Status    NotificationStatus `json:"status"`
	Payload   map[string]any     `json:"payload,omitempty"`
	Response  map[string]any     `json:"response,omitempty"`
	Error     string             `json:"error,omitempty"`
	JobID     string             `json:"job_id,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	SentAt    *time.Time         `json:"sent_at,omitempty"`
}

// Job correlates one action's lifecycle across dispatcher and workers
type Job struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	QueueName  string         `json:"queue_name,omitempty"`
	Status     JobStatus      `json:"status"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// JobEvent is an append-only record of one job transition
type JobEvent struct {
	ID        int64          `json:"id"`
	JobID     string         `json:"job_id"`
	EventType string         `json:"event_type"`
	Message   string         `json:"message,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
