package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)
}

func testResolution() Resolution {
	return Resolution{
		FieldEmail:       {Sources: []string{"Email"}},
		FieldFirstName:   {Sources: []string{"Nombre"}},
		FieldLastName:    {Sources: []string{"Apellidos"}},
		FieldFullName:    {Sources: []string{"Nombre completo"}},
		FieldTelefono:    {Sources: []string{"Teléfono"}},
		FieldCourseName:  {Sources: []string{"Curso"}, Default: "Curso PRL"},
		FieldTotalTime:   {Sources: []string{"Tiempo total"}},
		FieldLastAccess:  {Sources: []string{"Último acceso"}},
		FieldFirstAccess: {Sources: []string{"Primer acceso"}},
	}
}

func row(index int, cells map[string]string) RawRow {
	return RawRow{Index: index, Cells: cells}
}

func TestNormalizerDerivesWorkbookDefaults(t *testing.T) {
	rows := []RawRow{
		row(0, map[string]string{"Email": "a@x.es", "Tiempo total": "02h 15m 00s", "Último acceso": "01/03/2024"}),
		row(1, map[string]string{"Email": "b@x.es", "Tiempo total": "05h 30m 00s", "Último acceso": "15/03/2024"}),
		row(2, map[string]string{"Email": "c@x.es", "Tiempo total": "no visitado"}),
	}

	n := NewNormalizer(testResolution(), rows, fixedClock)

	record, ok := n.Normalize(rows[2])
	require.True(t, ok)

	// Hours: ceil of the workbook maximum total time (5.5h -> 6)
	assert.Equal(t, 6, record.CourseHoursRequired)

	// Deadline: latest access (15/03/2024) plus 30 days
	wantDeadline := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC).Add(30 * 24 * time.Hour)
	assert.Equal(t, wantDeadline, record.CourseDeadlineDate)
	assert.Equal(t, wantDeadline, record.CertificateExpiresAt)
}

func TestNormalizerDefaultsWithoutSignals(t *testing.T) {
	rows := []RawRow{
		row(0, map[string]string{"Email": "a@x.es"}),
	}

	n := NewNormalizer(testResolution(), rows, fixedClock)

	record, ok := n.Normalize(rows[0])
	require.True(t, ok)

	assert.Equal(t, fallbackCourseHours, record.CourseHoursRequired)
	wantDeadline := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC).Add(30 * 24 * time.Hour)
	assert.Equal(t, wantDeadline, record.CourseDeadlineDate)
}

func TestNormalizeSkipsRowsWithoutEmail(t *testing.T) {
	rows := []RawRow{
		row(0, map[string]string{"Nombre": "Ana", "Apellidos": "García"}),
	}

	n := NewNormalizer(testResolution(), rows, fixedClock)
	_, ok := n.Normalize(rows[0])
	assert.False(t, ok)
}

func TestNormalizeFullNamePrecedence(t *testing.T) {
	n := NewNormalizer(testResolution(), nil, fixedClock)

	record, ok := n.Normalize(row(0, map[string]string{
		"Email": "ana@x.es", "Nombre": "Ana", "Apellidos": "García", "Nombre completo": "Otra Cosa",
	}))
	require.True(t, ok)
	assert.Equal(t, "Ana García", record.FullName)

	record, ok = n.Normalize(row(1, map[string]string{
		"Email": "ana@x.es", "Nombre completo": "Ana García",
	}))
	require.True(t, ok)
	assert.Equal(t, "Ana García", record.FullName)

	record, ok = n.Normalize(row(2, map[string]string{"Email": "ana@x.es"}))
	require.True(t, ok)
	assert.Equal(t, "ana@x.es", record.FullName)
}

func TestNormalizeProgressFromTotalTime(t *testing.T) {
	rows := []RawRow{
		row(0, map[string]string{"Email": "a@x.es", "Tiempo total": "02h 15m 00s"}),
		row(1, map[string]string{"Email": "b@x.es", "Tiempo total": "no visitado"}),
	}

	n := NewNormalizer(testResolution(), rows, fixedClock)

	record, ok := n.Normalize(rows[0])
	require.True(t, ok)
	assert.InDelta(t, 2.25, record.ProgressHours, 1e-9)
	assert.Equal(t, "02h 15m 00s", record.RawTotalTime)

	record, ok = n.Normalize(rows[1])
	require.True(t, ok)
	assert.Zero(t, record.ProgressHours)
}

func TestNormalizeUsesCourseNameDefault(t *testing.T) {
	n := NewNormalizer(testResolution(), nil, fixedClock)

	record, ok := n.Normalize(row(0, map[string]string{"Email": "a@x.es"}))
	require.True(t, ok)
	assert.Equal(t, "Curso PRL", record.CourseName)
}

func TestContextMergesRawAndNormalized(t *testing.T) {
	rows := []RawRow{
		row(0, map[string]string{
			"Email": "ana@x.es", "Nombre": "Ana", "Apellidos": "García",
			"Tiempo total": "02h 15m 00s", "Último acceso": "01/03/2024",
			"DebeNotificar": "verdadero",
		}),
	}

	n := NewNormalizer(testResolution(), rows, fixedClock)
	record, ok := n.Normalize(rows[0])
	require.True(t, ok)

	ctx := record.Context()

	// Raw headers stay addressable with typed cells
	assert.Equal(t, true, ctx["DebeNotificar"])
	assert.Equal(t, "ana@x.es", ctx["Email"])

	// Normalized fields overlay with ISO dates
	assert.Equal(t, "Ana García", ctx[FieldFullName])
	assert.Equal(t, "ana@x.es", ctx[FieldEmail])
	assert.Equal(t, "2024-03-31", ctx[FieldCourseDeadline])
	assert.Equal(t, "2024-03-01T00:00:00Z", ctx["last_access_at"])
	assert.Nil(t, ctx[FieldTelefono])
}

func TestAttributesEchoDatesAndExtras(t *testing.T) {
	rows := []RawRow{
		row(0, map[string]string{
			"Email": "ana@x.es", "Teléfono": "600111222",
			"Tiempo total": "01h 00m 00s", "Primer acceso": "01/02/2024",
		}),
	}

	n := NewNormalizer(testResolution(), rows, fixedClock)
	record, ok := n.Normalize(rows[0])
	require.True(t, ok)

	attributes := record.Attributes()
	assert.Equal(t, "600111222", attributes[FieldTelefono])
	assert.Equal(t, "01h 00m 00s", attributes["raw_total_time"])
	assert.Equal(t, "2024-02-01T00:00:00Z", attributes["first_access_at"])
	assert.Contains(t, attributes, FieldCourseDeadline)
	assert.Contains(t, attributes, FieldCertificateExpires)
}

func TestFallbackAllTriesEveryPresentCandidate(t *testing.T) {
	resolution := Resolution{
		FieldEmail: {Sources: []string{"Email"}},
		FieldTelefono: {
			Sources:     []string{"Teléfono", "Móvil"},
			FallbackAll: true,
		},
	}

	n := NewNormalizer(resolution, nil, fixedClock)
	record, ok := n.Normalize(row(0, map[string]string{
		"Email": "a@x.es", "Teléfono": "", "Móvil": "600999888",
	}))
	require.True(t, ok)
	assert.Equal(t, "600999888", record.Telefono)
}

func TestFirstPresentWithoutFallbackUsesFirstSource(t *testing.T) {
	resolution := Resolution{
		FieldEmail: {Sources: []string{"Email"}},
		FieldTelefono: {
			Sources: []string{"Teléfono", "Móvil"},
		},
	}

	n := NewNormalizer(resolution, nil, fixedClock)
	record, ok := n.Normalize(row(0, map[string]string{
		"Email": "a@x.es", "Teléfono": "", "Móvil": "600999888",
	}))
	require.True(t, ok)
	assert.Empty(t, record.Telefono)
}
