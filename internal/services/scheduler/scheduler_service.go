package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/EloyM96/avisor/internal/common"
	"github.com/EloyM96/avisor/internal/workflows"
)

// entry tracks one scheduled playbook with its last outcome
type entry struct {
	playbook  string
	schedule  string
	dryRun    bool
	cronID    cron.EntryID
	lastRun   *time.Time
	lastError string
	isRunning bool
}

// EntryStatus is a read-only snapshot of a scheduled playbook
type EntryStatus struct {
	Playbook  string     `json:"playbook"`
	Schedule  string     `json:"schedule"`
	DryRun    bool       `json:"dry_run"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	IsRunning bool       `json:"is_running"`
	NextRun   time.Time  `json:"next_run"`
}

// Service runs playbooks on cron schedules. Quiet hours are enforced
// downstream by the dispatcher, so a run during the quiet window still
// executes and audits its actions as quiet_hours.
type Service struct {
	runner  *workflows.Runner
	cron    *cron.Cron
	logger  arbor.ILogger
	mu      sync.Mutex
	entries map[string]*entry
	running bool
}

// NewService creates a scheduler in the configured timezone
func NewService(runner *workflows.Runner, location *time.Location, logger arbor.ILogger) *Service {
	return &Service{
		runner:  runner,
		cron:    cron.New(cron.WithLocation(location)),
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Register adds one schedule. Duplicate playbook entries are rejected.
func (s *Service) Register(schedule common.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[schedule.Playbook]; exists {
		return fmt.Errorf("playbook %s is already scheduled", schedule.Playbook)
	}

	e := &entry{
		playbook: schedule.Playbook,
		schedule: schedule.Cron,
		dryRun:   schedule.DryRun,
	}
	id, err := s.cron.AddFunc(schedule.Cron, func() { s.runPlaybook(e) })
	if err != nil {
		return fmt.Errorf("failed to add cron schedule for %s: %w", schedule.Playbook, err)
	}
	e.cronID = id
	s.entries[schedule.Playbook] = e

	s.logger.Info().
		Str("playbook", schedule.Playbook).
		Str("schedule", schedule.Cron).
		Bool("dry_run", schedule.DryRun).
		Msg("Playbook scheduled")
	return nil
}

// Start begins executing registered schedules
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("schedules", len(s.entries)).Msg("Scheduler started")
	return nil
}

// Stop halts the scheduler and waits for in-flight runs
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// Entries returns a snapshot of all registered schedules
func (s *Service) Entries() []EntryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]EntryStatus, 0, len(s.entries))
	for _, e := range s.entries {
		statuses = append(statuses, EntryStatus{
			Playbook:  e.playbook,
			Schedule:  e.schedule,
			DryRun:    e.dryRun,
			LastRun:   e.lastRun,
			LastError: e.lastError,
			IsRunning: e.isRunning,
			NextRun:   s.cron.Entry(e.cronID).Next,
		})
	}
	return statuses
}

func (s *Service) runPlaybook(e *entry) {
	s.mu.Lock()
	if e.isRunning {
		s.mu.Unlock()
		s.logger.Warn().
			Str("playbook", e.playbook).
			Msg("Previous run still in progress, skipping")
		return
	}
	e.isRunning = true
	s.mu.Unlock()

	now := time.Now().UTC()
	report, err := s.runner.Run(context.Background(), e.playbook, e.dryRun)

	s.mu.Lock()
	e.isRunning = false
	e.lastRun = &now
	if err != nil {
		e.lastError = err.Error()
	} else {
		e.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).
			Str("playbook", e.playbook).
			Msg("Scheduled run failed")
		return
	}

	s.logger.Info().
		Str("playbook", report.Playbook).
		Str("mode", report.Mode).
		Int("matched_actions", report.MatchedActions).
		Int("enqueued_actions", report.EnqueuedActions).
		Msg("Scheduled run completed")
}
