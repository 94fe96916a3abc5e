package workflows

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/EloyM96/avisor/internal/common"
	"github.com/EloyM96/avisor/internal/notify"
	"github.com/EloyM96/avisor/internal/notify/adapters"
)

type collectingAdapter struct {
	name     string
	payloads []map[string]any
}

func (c *collectingAdapter) Name() string { return c.name }

func (c *collectingAdapter) Send(_ context.Context, payload map[string]any) (map[string]any, error) {
	c.payloads = append(c.payloads, payload)
	return map[string]any{"status": "sent"}, nil
}

func writeRunnerWorkbook(t *testing.T, dir string) {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Dirección de correo", "Nombre", "Tiempo total"},
		{"ana@x.es", "Ana García", "00h 30m 00s"},
		{"luis@x.es", "Luis Pérez", "05h 00m 00s"},
		{"", "Sin Correo", "00h 10m 00s"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(filepath.Join(dir, "informe.xlsx")))
}

func writeRunnerAssets(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "workflows", "playbooks")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	writeRunnerWorkbook(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "mapping.yaml"), []byte(`
columns:
  email: "Dirección de correo"
  full_name:
    source: "Nombre"
    required: false
  total_time:
    source: "Tiempo total"
    required: false
defaults:
  course_name: "Curso {workbook_stem}"
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(`
rules:
  - id: progreso_bajo
    description: Menos de una hora de trabajo
    when: "row.progress_hours < 1.0"
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cursos.yaml"), []byte(`
name: cursos
source:
  path: informe.xlsx
mapping: mapping.yaml
ruleset: rules.yaml
actions:
  - type: notify
    channel: email
    when: "{{ rule_results.progreso_bajo }}"
    to: "{{ row.email }}"
    subject: "Aviso para {{ row.full_name }}"
`), 0o644))

	return dir
}

func newTestRunner(t *testing.T, adapter *collectingAdapter) *Runner {
	t.Helper()
	dir := writeRunnerAssets(t)
	loader := NewLoader(dir, common.GetLogger())
	factory := func(playbook *Playbook) *notify.Dispatcher {
		return notify.NewDispatcher(notify.DispatcherOptions{
			Adapters:   adapters.NewRegistry().Register("email", adapter),
			QuietHours: playbook.QuietHours,
		})
	}
	runner := NewRunner(loader, factory, common.GetLogger())
	return runner.WithClock(func() time.Time {
		return time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	})
}

func TestRunnerExecute(t *testing.T) {
	adapter := &collectingAdapter{name: "smtp"}
	runner := newTestRunner(t, adapter)

	report, err := runner.Run(context.Background(), "cursos", false)
	require.NoError(t, err)

	assert.Equal(t, "cursos", report.Playbook)
	assert.Equal(t, "execute", report.Mode)
	// The row without email never reaches the dispatcher
	assert.Equal(t, 2, report.TotalRows)
	// Only Ana is below one hour of progress
	assert.Equal(t, 1, report.MatchedActions)
	assert.Equal(t, 1, report.EnqueuedActions)

	require.Len(t, adapter.payloads, 1)
	action := adapter.payloads[0]["action"].(map[string]any)
	assert.Equal(t, "ana@x.es", action["to"])
	assert.Equal(t, "Aviso para Ana García", action["subject"])
}

func TestRunnerDryRun(t *testing.T) {
	adapter := &collectingAdapter{name: "smtp"}
	runner := newTestRunner(t, adapter)

	report, err := runner.Run(context.Background(), "cursos", true)
	require.NoError(t, err)

	assert.Equal(t, "dry_run", report.Mode)
	assert.Equal(t, 1, report.MatchedActions)
	assert.Equal(t, 0, report.EnqueuedActions)
	assert.Empty(t, adapter.payloads)
}

func TestRunnerUnknownPlaybook(t *testing.T) {
	runner := newTestRunner(t, &collectingAdapter{name: "smtp"})

	_, err := runner.Run(context.Background(), "inexistente", false)
	var notFound *PlaybookNotFoundError
	require.ErrorAs(t, err, &notFound)
}
