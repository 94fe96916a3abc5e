package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/EloyM96/avisor/internal/interfaces"
	"github.com/EloyM96/avisor/internal/models"
)

// LoaderResult pairs the workbook summary with the persistence counters
type LoaderResult struct {
	Summary *ImportSummary
	Stats   models.LoaderStats
}

// Loader materialises workbook rows into courses, learners and
// enrollments. Entities are never deleted; the most recent ingest wins.
type Loader struct {
	storage interfaces.DomainStorage
	logger  arbor.ILogger
	now     func() time.Time
}

// NewLoader creates a workbook loader
func NewLoader(storage interfaces.DomainStorage, logger arbor.ILogger) *Loader {
	return &Loader{storage: storage, logger: logger, now: time.Now}
}

// WithClock injects a deterministic clock for tests
func (l *Loader) WithClock(now func() time.Time) *Loader {
	l.now = now
	return l
}

// IngestWorkbook validates the workbook and persists its rows. An invalid
// summary (missing columns) persists nothing and is not an error.
func (l *Loader) IngestWorkbook(ctx context.Context, path string, mapping *Mapping) (*LoaderResult, error) {
	summary, err := ParseWorkbook(path, mapping, 5, l.logger)
	if err != nil {
		return nil, err
	}

	result := &LoaderResult{Summary: summary}
	if !summary.IsValid() {
		return result, nil
	}

	workbook, err := ReadWorkbook(path, mapping.SheetName)
	if err != nil {
		return nil, err
	}
	resolution, err := mapping.Resolve(workbook.HeaderSet(), path)
	if err != nil {
		return nil, err
	}

	normalizer := NewNormalizer(resolution, workbook.Rows, l.now)

	for _, raw := range workbook.Rows {
		row, ok := normalizer.Normalize(raw)
		if !ok {
			continue
		}

		course, err := l.upsertCourse(ctx, row, &result.Stats)
		if err != nil {
			return nil, err
		}
		learner, err := l.upsertLearner(ctx, row, &result.Stats)
		if err != nil {
			return nil, err
		}
		if err := l.upsertEnrollment(ctx, row, learner, course, &result.Stats); err != nil {
			return nil, err
		}
	}

	l.logger.Info().
		Str("file", path).
		Int("courses_created", result.Stats.CoursesCreated).
		Int("learners_created", result.Stats.LearnersCreated).
		Int("enrollments_created", result.Stats.EnrollmentsCreated).
		Msg("Workbook ingested")

	return result, nil
}

func (l *Loader) upsertCourse(ctx context.Context, row *NormalizedRow, stats *models.LoaderStats) (*models.Course, error) {
	name := row.CourseName
	if name == "" {
		name = "Curso sin nombre"
	}

	course := &models.Course{
		Name:          name,
		HoursRequired: row.CourseHoursRequired,
		DeadlineDate:  row.CourseDeadlineDate,
		Source:        "xlsx",
	}

	created, changed, err := l.storage.UpsertCourse(ctx, course)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert course %q: %w", name, err)
	}
	if created {
		stats.CoursesCreated++
	} else if changed {
		stats.CoursesUpdated++
	}
	return course, nil
}

func (l *Loader) upsertLearner(ctx context.Context, row *NormalizedRow, stats *models.LoaderStats) (*models.Learner, error) {
	learner := &models.Learner{
		FullName:             row.FullName,
		Email:                row.Email,
		CertificateExpiresAt: row.CertificateExpiresAt,
	}

	created, changed, err := l.storage.UpsertLearner(ctx, learner)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert learner %q: %w", row.Email, err)
	}
	if created {
		stats.LearnersCreated++
	} else if changed {
		stats.LearnersUpdated++
	}
	return learner, nil
}

func (l *Loader) upsertEnrollment(ctx context.Context, row *NormalizedRow, learner *models.Learner, course *models.Course, stats *models.LoaderStats) error {
	enrollment := &models.Enrollment{
		LearnerID:     learner.ID,
		CourseID:      course.ID,
		ProgressHours: row.ProgressHours,
		Status:        "active",
		Attributes:    row.Attributes(),
	}

	created, changed, err := l.storage.UpsertEnrollment(ctx, enrollment)
	if err != nil {
		return fmt.Errorf("failed to upsert enrollment for %q: %w", row.Email, err)
	}
	if created {
		stats.EnrollmentsCreated++
	} else if changed {
		stats.EnrollmentsUpdated++
	}
	return nil
}
