package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMapping(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMappingShorthand(t *testing.T) {
	path := writeMapping(t, `
columns:
  email: "Dirección de correo"
  full_name: "Nombre completo"
`)

	mapping, err := LoadMapping(path)
	require.NoError(t, err)

	config := mapping.Columns["email"]
	assert.Equal(t, []string{"Dirección de correo"}, config.Sources)
	assert.True(t, config.Required)
}

func TestLoadMappingExpandedForm(t *testing.T) {
	path := writeMapping(t, `
sheet_name: "Informe"
columns:
  email:
    source: "Email"
  last_access:
    sources: ["Último acceso", "Ultimo acceso"]
    required: false
    fallback: all
  telefono:
    sources: ["Teléfono"]
    required: false
defaults:
  course_name: "Curso {workbook_stem}"
`)

	mapping, err := LoadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, "Informe", mapping.SheetName)

	lastAccess := mapping.Columns["last_access"]
	assert.Equal(t, []string{"Último acceso", "Ultimo acceso"}, lastAccess.Sources)
	assert.False(t, lastAccess.Required)
	assert.Equal(t, "all", lastAccess.Fallback)

	email := mapping.Columns["email"]
	assert.True(t, email.Required)
}

func TestLoadMappingRejectsUnsupportedColumn(t *testing.T) {
	path := writeMapping(t, `
columns:
  email: 42
`)

	_, err := LoadMapping(path)
	assert.Error(t, err)
}

func TestResolveBindsPresentSources(t *testing.T) {
	path := writeMapping(t, `
columns:
  email: "Email"
  last_access:
    sources: ["Último acceso", "Last access"]
    required: false
    fallback: all
`)
	mapping, err := LoadMapping(path)
	require.NoError(t, err)

	headers := map[string]bool{"Email": true, "Last access": true}
	resolution, err := mapping.Resolve(headers, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"Email"}, resolution["email"].Sources)
	assert.Equal(t, []string{"Last access"}, resolution["last_access"].Sources)
	assert.True(t, resolution["last_access"].FallbackAll)
}

func TestResolveMissingRequiredColumns(t *testing.T) {
	path := writeMapping(t, `
columns:
  email: "Email"
  full_name: "Nombre"
`)
	mapping, err := LoadMapping(path)
	require.NoError(t, err)

	_, err = mapping.Resolve(map[string]bool{"Email": true}, "")
	require.Error(t, err)

	var missing *MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"Nombre"}, missing.Columns)
}

func TestResolveOptionalAbsentStillResolves(t *testing.T) {
	path := writeMapping(t, `
columns:
  email: "Email"
  telefono:
    sources: ["Teléfono"]
    required: false
`)
	mapping, err := LoadMapping(path)
	require.NoError(t, err)

	resolution, err := mapping.Resolve(map[string]bool{"Email": true}, "")
	require.NoError(t, err)

	field, ok := resolution["telefono"]
	require.True(t, ok)
	assert.Empty(t, field.Sources)
}

func TestResolveDefaultsAndSubstitution(t *testing.T) {
	path := writeMapping(t, `
columns:
  email: "Email"
defaults:
  course_name: "Curso {workbook_stem}"
  course_hours: 20
`)
	mapping, err := LoadMapping(path)
	require.NoError(t, err)

	resolution, err := mapping.Resolve(map[string]bool{"Email": true}, "/data/PRL_2024.xlsx")
	require.NoError(t, err)

	assert.Equal(t, "Curso PRL_2024", resolution["course_name"].Default)
	assert.Equal(t, 20, resolution["course_hours"].Default)
}
