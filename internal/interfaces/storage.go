package interfaces

import (
	"context"

	"github.com/EloyM96/avisor/internal/models"
)

// AuditRepository persists notification attempts with their linked jobs
// and job events. Add is atomic: the audit row, the job upsert and the
// job event land in one transaction.
type AuditRepository interface {
	Add(ctx context.Context, entry *models.NotificationAuditEntry) (*models.Notification, error)
}

// AuditReader exposes read access to the audit trail
type AuditReader interface {
	ListNotifications(ctx context.Context, playbook string, limit int) ([]*models.Notification, error)
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobEvents(ctx context.Context, jobID string) ([]*models.JobEvent, error)
}

// DomainStorage persists the normalized training domain. Upserts fill in
// the entity ID and report whether a row was created or an existing row
// actually changed.
type DomainStorage interface {
	UpsertCourse(ctx context.Context, course *models.Course) (created, changed bool, err error)
	GetCourseByName(ctx context.Context, name string) (*models.Course, error)
	UpsertLearner(ctx context.Context, learner *models.Learner) (created, changed bool, err error)
	GetLearnerByEmail(ctx context.Context, email string) (*models.Learner, error)
	UpsertEnrollment(ctx context.Context, enrollment *models.Enrollment) (created, changed bool, err error)
	GetEnrollment(ctx context.Context, learnerID, courseID int64) (*models.Enrollment, error)
}
