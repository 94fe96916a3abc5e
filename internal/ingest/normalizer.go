package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Logical field names resolved through the column mapping
const (
	FieldFirstName          = "first_name"
	FieldLastName           = "last_name"
	FieldFullName           = "full_name"
	FieldEmail              = "email"
	FieldTelefono           = "telefono"
	FieldCourseName         = "course_name"
	FieldCourseHours        = "course_hours_required"
	FieldCourseDeadline     = "course_deadline_date"
	FieldCertificateExpires = "certificate_expires_at"
	FieldProgressHours      = "progress_hours"
	FieldTotalTime          = "total_time"
	FieldFirstAccess        = "first_access"
	FieldLastAccess         = "last_access"
)

// fallbackCourseHours applies when no total_time column lets us derive
// the required hours for the whole workbook
const fallbackCourseHours = 6

const deadlineGrace = 30 * 24 * time.Hour

// NormalizedRow is the typed record produced per raw row
type NormalizedRow struct {
	FullName             string
	Email                string
	Telefono             string
	CourseName           string
	CourseHoursRequired  int
	CourseDeadlineDate   time.Time
	CertificateExpiresAt time.Time
	ProgressHours        float64
	FirstAccessAt        *time.Time
	LastAccessAt         *time.Time
	RawTotalTime         string

	raw RawRow
}

// Normalizer coerces raw rows into typed records. Construction scans the
// whole sheet once to derive the workbook-wide defaults that feed rows
// lacking their own hours or deadline columns.
type Normalizer struct {
	resolution Resolution
	now        func() time.Time

	defaultHours       int
	defaultDeadline    time.Time
	defaultCertificate time.Time
}

// NewNormalizer builds a normalizer for one workbook
func NewNormalizer(resolution Resolution, rows []RawRow, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	n := &Normalizer{resolution: resolution, now: now}
	n.deriveWorkbookDefaults(rows)
	return n
}

// deriveWorkbookDefaults computes default_course_hours_required,
// default_course_deadline_date and default_certificate_expires_at from
// the full sheet before any row is normalized
func (n *Normalizer) deriveWorkbookDefaults(rows []RawRow) {
	maxHours := math.Inf(-1)
	var maxAccess time.Time

	for _, row := range rows {
		if value := n.rawValue(row, FieldTotalTime); value != "" {
			if hours, ok := ParseTotalTime(value); ok && hours > maxHours {
				maxHours = hours
			}
		}

		access := n.rawValue(row, FieldLastAccess)
		if access == "" {
			access = n.rawValue(row, FieldFirstAccess)
		}
		if parsed, ok := ParseDate(access); ok && parsed.After(maxAccess) {
			maxAccess = parsed
		}
	}

	if math.IsInf(maxHours, -1) {
		n.defaultHours = fallbackCourseHours
	} else {
		n.defaultHours = int(math.Ceil(maxHours))
	}

	if maxAccess.IsZero() {
		n.defaultDeadline = n.today().Add(deadlineGrace)
	} else {
		n.defaultDeadline = maxAccess.Add(deadlineGrace)
	}
	n.defaultCertificate = n.defaultDeadline
}

// Normalize coerces one raw row. The boolean reports whether the row is
// usable; rows without an email are skipped entirely.
func (n *Normalizer) Normalize(row RawRow) (*NormalizedRow, bool) {
	email := strings.TrimSpace(n.value(row, FieldEmail))
	if email == "" {
		return nil, false
	}

	record := &NormalizedRow{Email: email, raw: row}

	first := n.value(row, FieldFirstName)
	last := n.value(row, FieldLastName)
	switch {
	case first != "" && last != "":
		record.FullName = first + " " + last
	case n.value(row, FieldFullName) != "":
		record.FullName = n.value(row, FieldFullName)
	default:
		record.FullName = email
	}

	record.Telefono = n.value(row, FieldTelefono)
	record.CourseName = n.value(row, FieldCourseName)

	record.CourseHoursRequired = n.defaultHours
	if raw := n.value(row, FieldCourseHours); raw != "" {
		if hours, ok := ParseFloat(raw); ok {
			record.CourseHoursRequired = int(math.Ceil(hours))
		}
	}

	record.CourseDeadlineDate = n.defaultDeadline
	if parsed, ok := ParseDate(n.value(row, FieldCourseDeadline)); ok {
		record.CourseDeadlineDate = parsed
	}

	record.CertificateExpiresAt = record.CourseDeadlineDate
	if parsed, ok := ParseDate(n.value(row, FieldCertificateExpires)); ok {
		record.CertificateExpiresAt = parsed
	}

	record.RawTotalTime = n.rawValue(row, FieldTotalTime)
	if raw := n.value(row, FieldProgressHours); raw != "" {
		if hours, ok := ParseFloat(raw); ok {
			record.ProgressHours = hours
		}
	} else if hours, ok := ParseTotalTime(record.RawTotalTime); ok {
		record.ProgressHours = hours
	}

	if parsed, ok := ParseDate(n.rawValue(row, FieldFirstAccess)); ok {
		record.FirstAccessAt = &parsed
	}
	if parsed, ok := ParseDate(n.rawValue(row, FieldLastAccess)); ok {
		record.LastAccessAt = &parsed
	}

	return record, true
}

// Context exposes the row to rules and templates: every original header
// with a typed cell value, overlaid with the normalized logical fields.
// Dates render as ISO strings so round-trips stay stable.
func (r *NormalizedRow) Context() map[string]any {
	context := make(map[string]any, len(r.raw.Cells)+12)
	for header, cell := range r.raw.Cells {
		context[header] = CoerceCell(cell)
	}

	context[FieldFullName] = r.FullName
	context[FieldEmail] = r.Email
	context[FieldTelefono] = orNil(r.Telefono)
	context[FieldCourseName] = orNil(r.CourseName)
	context[FieldCourseHours] = r.CourseHoursRequired
	context[FieldCourseDeadline] = r.CourseDeadlineDate.Format("2006-01-02")
	context[FieldCertificateExpires] = r.CertificateExpiresAt.Format("2006-01-02")
	context[FieldProgressHours] = r.ProgressHours
	context["first_access_at"] = isoOrNil(r.FirstAccessAt)
	context["last_access_at"] = isoOrNil(r.LastAccessAt)

	return context
}

// Attributes builds the free-form enrollment attributes: ISO echoes of
// the dates plus telefono, raw total time and access timestamps
func (r *NormalizedRow) Attributes() map[string]any {
	attributes := map[string]any{
		FieldCertificateExpires: r.CertificateExpiresAt.Format("2006-01-02"),
		FieldCourseDeadline:     r.CourseDeadlineDate.Format("2006-01-02"),
	}
	if r.Telefono != "" {
		attributes[FieldTelefono] = r.Telefono
	}
	if r.RawTotalTime != "" {
		attributes["raw_total_time"] = r.RawTotalTime
	}
	if r.FirstAccessAt != nil {
		attributes["first_access_at"] = r.FirstAccessAt.Format(time.RFC3339)
	}
	if r.LastAccessAt != nil {
		attributes["last_access_at"] = r.LastAccessAt.Format(time.RFC3339)
	}
	return attributes
}

// value reads a logical field from its resolved sources, falling back to
// the mapping default. Fallback mode "all" tries every present candidate.
func (n *Normalizer) value(row RawRow, field string) string {
	resolved, ok := n.resolution[field]
	if !ok {
		return ""
	}

	if raw := firstPresent(row, resolved); raw != "" {
		return raw
	}

	if resolved.Default != nil {
		return strings.TrimSpace(stringify(resolved.Default))
	}
	return ""
}

// rawValue reads only the source columns, ignoring defaults
func (n *Normalizer) rawValue(row RawRow, field string) string {
	resolved, ok := n.resolution[field]
	if !ok {
		return ""
	}
	return firstPresent(row, resolved)
}

func firstPresent(row RawRow, resolved ResolvedField) string {
	if len(resolved.Sources) == 0 {
		return ""
	}
	if !resolved.FallbackAll {
		return strings.TrimSpace(row.Cells[resolved.Sources[0]])
	}
	for _, source := range resolved.Sources {
		if value := strings.TrimSpace(row.Cells[source]); value != "" {
			return value
		}
	}
	return ""
}

func (n *Normalizer) today() time.Time {
	now := n.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func orNil(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func isoOrNil(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.Format(time.RFC3339)
}

// stringify renders a YAML scalar default (string, int, float64 or bool)
func stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
