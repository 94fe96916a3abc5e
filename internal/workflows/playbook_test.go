package workflows

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EloyM96/avisor/internal/common"
)

func writePlaybookTree(t *testing.T, playbookYAML string) (string, string) {
	t.Helper()
	root := t.TempDir()
	playbooksDir := filepath.Join(root, "workflows", "playbooks")
	require.NoError(t, os.MkdirAll(playbooksDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(playbooksDir, "cursos.yaml"), []byte(playbookYAML), 0o644))
	return root, playbooksDir
}

const minimalPlaybook = `
name: cursos
source:
  path: informe.xlsx
mapping: mapping.yaml
ruleset: rules.yaml
actions:
  - type: notify
    channel: email
    to: "{{ row.email }}"
`

func TestLoadPlaybook(t *testing.T) {
	_, dir := writePlaybookTree(t, minimalPlaybook+`
quiet_hours:
  start: "21:00"
  end: "08:00"
`)

	playbook, err := NewLoader(dir, common.GetLogger()).Load("cursos")
	require.NoError(t, err)

	assert.Equal(t, "cursos", playbook.Name)
	require.Len(t, playbook.Actions, 1)
	assert.Equal(t, "email", playbook.Actions[0].Channel)
	assert.Equal(t, "{{ row.email }}", playbook.Actions[0].Fields["to"])

	require.NotNil(t, playbook.QuietHours)
	assert.False(t, playbook.QuietHours.Allows(time.Date(2024, 6, 10, 23, 0, 0, 0, time.UTC)))
	assert.True(t, playbook.QuietHours.Allows(time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)))
}

func TestLoadPlaybookIdentifierVariants(t *testing.T) {
	_, dir := writePlaybookTree(t, minimalPlaybook)
	loader := NewLoader(dir, common.GetLogger())

	for _, identifier := range []string{"cursos", "cursos.yaml"} {
		playbook, err := loader.Load(identifier)
		require.NoError(t, err)
		assert.Equal(t, "cursos", playbook.Name)
	}
}

func TestLoadPlaybookNameDefaultsToFileStem(t *testing.T) {
	_, dir := writePlaybookTree(t, `
source:
  path: informe.xlsx
mapping: mapping.yaml
ruleset: rules.yaml
actions:
  - type: notify
    channel: email
`)

	playbook, err := NewLoader(dir, common.GetLogger()).Load("cursos")
	require.NoError(t, err)
	assert.Equal(t, "cursos", playbook.Name)
}

func TestLoadPlaybookNotFound(t *testing.T) {
	_, dir := writePlaybookTree(t, minimalPlaybook)

	_, err := NewLoader(dir, common.GetLogger()).Load("inexistente")
	var notFound *PlaybookNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "inexistente", notFound.Name)
	assert.Contains(t, notFound.Error(), "no encontrado")
}

func TestLoadPlaybookMissingRequiredKeys(t *testing.T) {
	_, dir := writePlaybookTree(t, `
name: cursos
source:
  path: informe.xlsx
actions:
  - type: notify
    channel: email
`)

	_, err := NewLoader(dir, common.GetLogger()).Load("cursos")
	var invalid *PlaybookError
	require.ErrorAs(t, err, &invalid)
}

func TestLoadPlaybookRejectsEmptyActions(t *testing.T) {
	_, dir := writePlaybookTree(t, `
name: cursos
source:
  path: informe.xlsx
mapping: mapping.yaml
ruleset: rules.yaml
actions: []
`)

	_, err := NewLoader(dir, common.GetLogger()).Load("cursos")
	var invalid *PlaybookError
	require.ErrorAs(t, err, &invalid)
}

func TestLoadPlaybookBadQuietHours(t *testing.T) {
	_, dir := writePlaybookTree(t, minimalPlaybook+`
quiet_hours:
  start: "25:99"
  end: "08:00"
`)

	_, err := NewLoader(dir, common.GetLogger()).Load("cursos")
	var invalid *PlaybookError
	require.ErrorAs(t, err, &invalid)
}

func TestResolveRelatedPathPrefersPlaybookDir(t *testing.T) {
	_, dir := writePlaybookTree(t, minimalPlaybook)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mapping.yaml"), []byte("columns: {}"), 0o644))

	playbook, err := NewLoader(dir, common.GetLogger()).Load("cursos")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mapping.yaml"), playbook.MappingPath)

	// Files that exist nowhere still resolve next to the playbook
	assert.Equal(t, filepath.Join(dir, "informe.xlsx"), playbook.SourcePath)
}

func TestResolveRelatedPathFallsBackToRoot(t *testing.T) {
	root, dir := writePlaybookTree(t, `
name: cursos
source:
  path: data/informe.xlsx
mapping: mapping.yaml
ruleset: rules.yaml
actions:
  - type: notify
    channel: email
`)
	dataDir := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "informe.xlsx"), []byte("x"), 0o644))

	playbook, err := NewLoader(dir, common.GetLogger()).Load("cursos")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "data", "informe.xlsx"), playbook.SourcePath)
}
