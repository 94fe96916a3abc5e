package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/EloyM96/avisor/internal/models"
)

// AuditStorage persists the notification audit trail. Every Add call
// writes the audit row, upserts the correlated job and appends a job
// event inside one transaction; rows are never updated afterwards.
type AuditStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewAuditStorage creates a new audit storage instance
func NewAuditStorage(db *SQLiteDB, logger arbor.ILogger) *AuditStorage {
	return &AuditStorage{db: db, logger: logger}
}

// Add persists one notification attempt
func (s *AuditStorage) Add(ctx context.Context, entry *models.NotificationAuditEntry) (*models.Notification, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if entry.JobID != "" {
		if err := s.upsertJob(ctx, tx, entry, now); err != nil {
			return nil, err
		}
	}

	var sentAt *time.Time
	if entry.Status == models.StatusSent {
		sentAt = &now
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (playbook, channel, adapter, recipient, subject, status, payload, response, error, job_id, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(entry.Playbook),
		entry.Channel,
		entry.Adapter,
		nullString(entry.Recipient),
		nullString(entry.Subject),
		string(entry.Status),
		marshalJSON(entry.Payload),
		marshalJSON(entry.Response),
		nullString(entry.Error),
		nullString(entry.JobID),
		now.Unix(),
		nullUnix(sentAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read notification id: %w", err)
	}

	if entry.JobID != "" {
		message := entry.Error
		if message == "" {
			message = entry.Subject
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO job_events (job_id, event_type, message, payload, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			entry.JobID,
			fmt.Sprintf("notification.%s", entry.Status),
			nullString(message),
			marshalJSON(entry.Payload),
			now.Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert job event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit audit entry: %w", err)
	}

	return &models.Notification{
		ID:        id,
		Playbook:  entry.Playbook,
		Channel:   entry.Channel,
		Adapter:   entry.Adapter,
		Recipient: entry.Recipient,
		Subject:   entry.Subject,
		Status:    entry.Status,
		Payload:   entry.Payload,
		Response:  entry.Response,
		Error:     entry.Error,
		JobID:     entry.JobID,
		CreatedAt: now,
		SentAt:    sentAt,
	}, nil
}

// upsertJob creates the job row on first sight and moves its status on
// every later attempt
func (s *AuditStorage) upsertJob(ctx context.Context, tx *sql.Tx, entry *models.NotificationAuditEntry, now time.Time) error {
	status := string(models.MapJobStatus(entry.Status))

	var existingName string
	err := tx.QueryRowContext(ctx, "SELECT name FROM jobs WHERE id = ?", entry.JobID).Scan(&existingName)
	if err == sql.ErrNoRows {
		name := entry.JobName
		if name == "" {
			name = entry.Channel
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO jobs (id, name, queue_name, status, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			entry.JobID,
			name,
			nullString(entry.QueueName),
			status,
			marshalJSON(entry.Payload),
			now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert job: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query job: %w", err)
	}

	name := entry.JobName
	if name == "" {
		name = existingName
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET name = ?,
		    queue_name = COALESCE(?, queue_name),
		    status = ?,
		    payload = COALESCE(?, payload)
		WHERE id = ?`,
		name,
		nullString(entry.QueueName),
		status,
		marshalJSON(entry.Payload),
		entry.JobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// ListNotifications returns the newest audit rows, optionally filtered
// by playbook
func (s *AuditStorage) ListNotifications(ctx context.Context, playbook string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, playbook, channel, adapter, recipient, subject, status, payload, response, error, job_id, created_at, sent_at
		FROM notifications`
	args := []any{}
	if playbook != "" {
		query += " WHERE playbook = ?"
		args = append(args, playbook)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// GetJob returns one job by id, or nil when absent
func (s *AuditStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var (
		job                   models.Job
		queueName, payload    sql.NullString
		createdAt             int64
		startedAt, finishedAt sql.NullInt64
	)
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT id, name, queue_name, status, payload, created_at, started_at, finished_at
		FROM jobs WHERE id = ?`, jobID).
		Scan(&job.ID, &job.Name, &queueName, &job.Status, &payload, &createdAt, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.QueueName = queueName.String
	job.Payload = unmarshalJSON(payload)
	job.CreatedAt = time.Unix(createdAt, 0).UTC()
	job.StartedAt = unixPtr(startedAt)
	job.FinishedAt = unixPtr(finishedAt)
	return &job, nil
}

// ListJobEvents returns a job's events oldest first
func (s *AuditStorage) ListJobEvents(ctx context.Context, jobID string) ([]*models.JobEvent, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, job_id, event_type, message, payload, created_at
		FROM job_events WHERE job_id = ?
		ORDER BY created_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job events: %w", err)
	}
	defer rows.Close()

	var events []*models.JobEvent
	for rows.Next() {
		var (
			event            models.JobEvent
			message, payload sql.NullString
			createdAt        int64
		)
		if err := rows.Scan(&event.ID, &event.JobID, &event.EventType, &message, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan job event: %w", err)
		}
		event.Message = message.String
		event.Payload = unmarshalJSON(payload)
		event.CreatedAt = time.Unix(createdAt, 0).UTC()
		events = append(events, &event)
	}
	return events, rows.Err()
}

func scanNotification(rows *sql.Rows) (*models.Notification, error) {
	var (
		n                             models.Notification
		playbook, recipient, subject  sql.NullString
		payload, response, errText    sql.NullString
		jobID                         sql.NullString
		createdAt                     int64
		sentAt                        sql.NullInt64
	)
	err := rows.Scan(&n.ID, &playbook, &n.Channel, &n.Adapter, &recipient, &subject, &n.Status,
		&payload, &response, &errText, &jobID, &createdAt, &sentAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}

	n.Playbook = playbook.String
	n.Recipient = recipient.String
	n.Subject = subject.String
	n.Payload = unmarshalJSON(payload)
	n.Response = unmarshalJSON(response)
	n.Error = errText.String
	n.JobID = jobID.String
	n.CreatedAt = time.Unix(createdAt, 0).UTC()
	n.SentAt = unixPtr(sentAt)
	return &n, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func unixPtr(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := time.Unix(value.Int64, 0).UTC()
	return &t
}

func marshalJSON(value map[string]any) sql.NullString {
	if len(value) == 0 {
		return sql.NullString{}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func unmarshalJSON(value sql.NullString) map[string]any {
	if !value.Valid || value.String == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(value.String), &out); err != nil {
		return nil
	}
	return out
}
