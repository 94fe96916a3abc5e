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

const dateLayout = "2006-01-02"

// DomainStorage persists courses, learners and enrollments. Upserts are
// idempotent on the natural keys (course name, learner email, the
// learner/course pair) and report whether anything actually changed.
type DomainStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewDomainStorage creates a new domain storage instance
func NewDomainStorage(db *SQLiteDB, logger arbor.ILogger) *DomainStorage {
	return &DomainStorage{db: db, logger: logger}
}

// UpsertCourse inserts the course or refreshes hours and deadline when
// a later ingest disagrees
func (s *DomainStorage) UpsertCourse(ctx context.Context, course *models.Course) (bool, bool, error) {
	existing, err := s.GetCourseByName(ctx, course.Name)
	if err != nil {
		return false, false, err
	}

	if existing == nil {
		now := time.Now().UTC()
		result, err := s.db.DB().ExecContext(ctx, `
			INSERT INTO courses (name, hours_required, deadline_date, source, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			course.Name, course.HoursRequired, course.DeadlineDate.Format(dateLayout),
			course.Source, now.Unix(),
		)
		if err != nil {
			return false, false, fmt.Errorf("failed to insert course: %w", err)
		}
		course.ID, err = result.LastInsertId()
		if err != nil {
			return false, false, err
		}
		course.CreatedAt = now
		return true, false, nil
	}

	course.ID = existing.ID
	course.CreatedAt = existing.CreatedAt
	if existing.HoursRequired == course.HoursRequired &&
		existing.DeadlineDate.Equal(course.DeadlineDate) &&
		existing.Source == course.Source {
		return false, false, nil
	}

	_, err = s.db.DB().ExecContext(ctx, `
		UPDATE courses SET hours_required = ?, deadline_date = ?, source = ? WHERE id = ?`,
		course.HoursRequired, course.DeadlineDate.Format(dateLayout), course.Source, existing.ID,
	)
	if err != nil {
		return false, false, fmt.Errorf("failed to update course: %w", err)
	}
	return false, true, nil
}

// GetCourseByName returns a course by its unique name, or nil
func (s *DomainStorage) GetCourseByName(ctx context.Context, name string) (*models.Course, error) {
	var (
		course    models.Course
		deadline  string
		createdAt int64
	)
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT id, name, hours_required, deadline_date, source, created_at
		FROM courses WHERE name = ?`, name).
		Scan(&course.ID, &course.Name, &course.HoursRequired, &deadline, &course.Source, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	course.DeadlineDate, err = time.Parse(dateLayout, deadline)
	if err != nil {
		return nil, fmt.Errorf("invalid deadline_date for course %d: %w", course.ID, err)
	}
	course.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &course, nil
}

// UpsertLearner inserts the learner or refreshes name and certificate
// expiry keyed by email
func (s *DomainStorage) UpsertLearner(ctx context.Context, learner *models.Learner) (bool, bool, error) {
	existing, err := s.GetLearnerByEmail(ctx, learner.Email)
	if err != nil {
		return false, false, err
	}

	now := time.Now().UTC()
	if existing == nil {
		result, err := s.db.DB().ExecContext(ctx, `
			INSERT INTO learners (full_name, email, certificate_expires_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			learner.FullName, learner.Email, formatDate(learner.CertificateExpiresAt),
			now.Unix(), now.Unix(),
		)
		if err != nil {
			return false, false, fmt.Errorf("failed to insert learner: %w", err)
		}
		learner.ID, err = result.LastInsertId()
		if err != nil {
			return false, false, err
		}
		learner.CreatedAt = now
		learner.UpdatedAt = now
		return true, false, nil
	}

	learner.ID = existing.ID
	learner.CreatedAt = existing.CreatedAt
	if existing.FullName == learner.FullName &&
		existing.CertificateExpiresAt.Equal(learner.CertificateExpiresAt) {
		learner.UpdatedAt = existing.UpdatedAt
		return false, false, nil
	}

	_, err = s.db.DB().ExecContext(ctx, `
		UPDATE learners SET full_name = ?, certificate_expires_at = ?, updated_at = ? WHERE id = ?`,
		learner.FullName, formatDate(learner.CertificateExpiresAt), now.Unix(), existing.ID,
	)
	if err != nil {
		return false, false, fmt.Errorf("failed to update learner: %w", err)
	}
	learner.UpdatedAt = now
	return false, true, nil
}

// GetLearnerByEmail returns a learner by email, or nil
func (s *DomainStorage) GetLearnerByEmail(ctx context.Context, email string) (*models.Learner, error) {
	var (
		learner              models.Learner
		certificate          sql.NullString
		createdAt, updatedAt int64
	)
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT id, full_name, email, certificate_expires_at, created_at, updated_at
		FROM learners WHERE email = ?`, email).
		Scan(&learner.ID, &learner.FullName, &learner.Email, &certificate, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learner: %w", err)
	}

	if certificate.Valid && certificate.String != "" {
		learner.CertificateExpiresAt, err = time.Parse(dateLayout, certificate.String)
		if err != nil {
			return nil, fmt.Errorf("invalid certificate_expires_at for learner %d: %w", learner.ID, err)
		}
	}
	learner.CreatedAt = time.Unix(createdAt, 0).UTC()
	learner.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &learner, nil
}

// UpsertEnrollment inserts or refreshes the learner/course link
func (s *DomainStorage) UpsertEnrollment(ctx context.Context, enrollment *models.Enrollment) (bool, bool, error) {
	existing, err := s.GetEnrollment(ctx, enrollment.LearnerID, enrollment.CourseID)
	if err != nil {
		return false, false, err
	}

	attributes := marshalJSON(enrollment.Attributes)

	if existing == nil {
		result, err := s.db.DB().ExecContext(ctx, `
			INSERT INTO enrollments (learner_id, course_id, progress_hours, status, last_notified_at, attributes)
			VALUES (?, ?, ?, ?, ?, ?)`,
			enrollment.LearnerID, enrollment.CourseID, enrollment.ProgressHours,
			enrollment.Status, nullUnix(enrollment.LastNotifiedAt), attributes,
		)
		if err != nil {
			return false, false, fmt.Errorf("failed to insert enrollment: %w", err)
		}
		enrollment.ID, err = result.LastInsertId()
		if err != nil {
			return false, false, err
		}
		return true, false, nil
	}

	enrollment.ID = existing.ID
	if enrollment.LastNotifiedAt == nil {
		enrollment.LastNotifiedAt = existing.LastNotifiedAt
	}
	if existing.ProgressHours == enrollment.ProgressHours &&
		existing.Status == enrollment.Status &&
		equalJSON(existing.Attributes, enrollment.Attributes) {
		return false, false, nil
	}

	_, err = s.db.DB().ExecContext(ctx, `
		UPDATE enrollments SET progress_hours = ?, status = ?, last_notified_at = ?, attributes = ? WHERE id = ?`,
		enrollment.ProgressHours, enrollment.Status,
		nullUnix(enrollment.LastNotifiedAt), attributes, existing.ID,
	)
	if err != nil {
		return false, false, fmt.Errorf("failed to update enrollment: %w", err)
	}
	return false, true, nil
}

// GetEnrollment returns the enrollment for a learner/course pair, or nil
func (s *DomainStorage) GetEnrollment(ctx context.Context, learnerID, courseID int64) (*models.Enrollment, error) {
	var (
		enrollment     models.Enrollment
		lastNotifiedAt sql.NullInt64
		attributes     sql.NullString
	)
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT id, learner_id, course_id, progress_hours, status, last_notified_at, attributes
		FROM enrollments WHERE learner_id = ? AND course_id = ?`, learnerID, courseID).
		Scan(&enrollment.ID, &enrollment.LearnerID, &enrollment.CourseID,
			&enrollment.ProgressHours, &enrollment.Status, &lastNotifiedAt, &attributes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	enrollment.LastNotifiedAt = unixPtr(lastNotifiedAt)
	enrollment.Attributes = unmarshalJSON(attributes)
	return &enrollment, nil
}

func formatDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func equalJSON(a, b map[string]any) bool {
	aData, _ := json.Marshal(a)
	bData, _ := json.Marshal(b)
	return string(aData) == string(bData)
}
