package models

import "time"

// Course holds training course metadata sourced from workbook ingests.
// Courses are created on first sighting and never deleted; a later ingest
// with differing hours or deadline wins.
type Course struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	HoursRequired int       `json:"hours_required"`
	DeadlineDate  time.Time `json:"deadline_date"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
}

// Learner represents a person enrolled in one or more courses
type Learner struct {
	ID                   int64     `json:"id"`
	FullName             string    `json:"full_name"`
	Email                string    `json:"email"`
	CertificateExpiresAt time.Time `json:"certificate_expires_at"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Enrollment links a learner with a course and tracks progress.
// The (learner, course) pair is unique. Attributes carry ISO-string date
// echoes plus free-form fields such as telefono and access timestamps.
type Enrollment struct {
	ID             int64          `json:"id"`
	LearnerID      int64          `json:"learner_id"`
	CourseID       int64          `json:"course_id"`
	ProgressHours  float64        `json:"progress_hours"`
	Status         string         `json:"status"`
	LastNotifiedAt *time.Time     `json:"last_notified_at,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// LoaderStats counts entities created or updated during an ingest
type LoaderStats struct {
	CoursesCreated     int `json:"courses_created"`
	CoursesUpdated     int `json:"courses_updated"`
	LearnersCreated    int `json:"learners_created"`
	LearnersUpdated    int `json:"learners_updated"`
	EnrollmentsCreated int `json:"enrollments_created"`
	EnrollmentsUpdated int `json:"enrollments_updated"`
}
