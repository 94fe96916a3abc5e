package workflows

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/EloyM96/avisor/internal/ingest"
	"github.com/EloyM96/avisor/internal/models"
	"github.com/EloyM96/avisor/internal/notify"
	"github.com/EloyM96/avisor/internal/rules"
)

// DispatcherFactory builds a dispatcher for one playbook run. The
// playbook's quiet hours travel through here.
type DispatcherFactory func(playbook *Playbook) *notify.Dispatcher

// Runner drives one playbook end to end: read the workbook, map and
// normalize its rows, evaluate the ruleset and hand the survivors to
// the dispatcher.
type Runner struct {
	playbooks *Loader
	factory   DispatcherFactory
	now       func() time.Time
	logger    arbor.ILogger
}

func NewRunner(playbooks *Loader, factory DispatcherFactory, logger arbor.ILogger) *Runner {
	return &Runner{
		playbooks: playbooks,
		factory:   factory,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock overrides the normalizer clock, used by tests
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run executes the named playbook in dry-run or live mode
func (r *Runner) Run(ctx context.Context, identifier string, dryRun bool) (*models.RunReport, error) {
	playbook, err := r.playbooks.Load(identifier)
	if err != nil {
		return nil, err
	}

	rows, err := r.evaluateRows(playbook)
	if err != nil {
		return nil, err
	}

	dispatcher := r.factory(playbook)
	summary, err := dispatcher.Dispatch(ctx, rows, playbook.Actions, dryRun, playbook.Name)
	if err != nil {
		return nil, err
	}

	matches, enqueued := 0, 0
	for _, stats := range summary {
		matches += stats.Matches
		enqueued += stats.Enqueued
	}

	mode := "execute"
	if dryRun {
		mode = "dry_run"
	}

	report := &models.RunReport{
		Playbook:        playbook.Name,
		Mode:            mode,
		TotalRows:       len(rows),
		MatchedActions:  matches,
		EnqueuedActions: enqueued,
		Summary:         summary,
	}

	r.logger.Info().
		Str("playbook", report.Playbook).
		Str("mode", report.Mode).
		Int("total_rows", report.TotalRows).
		Int("matched_actions", report.MatchedActions).
		Int("enqueued_actions", report.EnqueuedActions).
		Msg("Playbook run completed")

	return report, nil
}

// evaluateRows produces the normalized rows with their rule results.
// Rows the normalizer rejects (no email) never reach the dispatcher.
func (r *Runner) evaluateRows(playbook *Playbook) ([]models.EvaluatedRow, error) {
	mapping, err := ingest.LoadMapping(playbook.MappingPath)
	if err != nil {
		return nil, err
	}

	workbook, err := ingest.ReadWorkbook(playbook.SourcePath, nil)
	if err != nil {
		return nil, err
	}

	resolution, err := mapping.Resolve(workbook.HeaderSet(), workbook.Path)
	if err != nil {
		return nil, err
	}

	ruleset, err := rules.LoadRuleSet(playbook.RulesetPath)
	if err != nil {
		return nil, err
	}

	normalizer := ingest.NewNormalizer(resolution, workbook.Rows, r.now)

	var evaluated []models.EvaluatedRow
	for _, raw := range workbook.Rows {
		normalized, ok := normalizer.Normalize(raw)
		if !ok {
			continue
		}
		rowCtx := normalized.Context()
		results, err := ruleset.Evaluate(map[string]any{"row": rowCtx})
		if err != nil {
			return nil, err
		}
		evaluated = append(evaluated, models.EvaluatedRow{Row: rowCtx, RuleResults: results})
	}
	return evaluated, nil
}
