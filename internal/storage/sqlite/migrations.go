package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrate runs database migrations
func (s *SQLiteDB) migrate() error {
	ctx := context.Background()

	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "domain_tables", up: migrateV1},
		{version: 2, name: "notification_audit", up: migrateV2},
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

type migration struct {
	version int
	name    string
	up      func(context.Context, *sql.Tx) error
}

func (s *SQLiteDB) createMigrationsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLiteDB) runMigration(ctx context.Context, m migration) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}

	if count > 0 {
		return nil // Already applied
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.up(ctx, tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// migrateV1 creates the normalized training domain tables
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS courses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			hours_required INTEGER NOT NULL,
			deadline_date TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'xlsx',
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,

		`CREATE TABLE IF NOT EXISTS learners (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			certificate_expires_at TEXT,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,

		`CREATE TABLE IF NOT EXISTS enrollments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			learner_id INTEGER NOT NULL,
			course_id INTEGER NOT NULL,
			progress_hours REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			last_notified_at INTEGER,
			attributes TEXT,
			UNIQUE(learner_id, course_id),
			FOREIGN KEY (learner_id) REFERENCES learners(id) ON DELETE CASCADE,
			FOREIGN KEY (course_id) REFERENCES courses(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_learner ON enrollments(learner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_course ON enrollments(course_id)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// migrateV2 creates the notification audit trail with job correlation
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			queue_name TEXT,
			status TEXT NOT NULL DEFAULT 'queued',
			payload TEXT,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			started_at INTEGER,
			finished_at INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS job_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			message TEXT,
			payload TEXT,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_events_job ON job_events(job_id)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			playbook TEXT,
			channel TEXT NOT NULL,
			adapter TEXT NOT NULL,
			recipient TEXT,
			subject TEXT,
			status TEXT NOT NULL,
			payload TEXT,
			response TEXT,
			error TEXT,
			job_id TEXT REFERENCES jobs(id) ON DELETE SET NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			sent_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_job ON notifications(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_playbook ON notifications(playbook, created_at)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}
