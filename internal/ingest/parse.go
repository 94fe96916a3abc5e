package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Coercions are deterministic and total: on failure they report !ok and
// the caller produces a null, never aborting the row.

var (
	hoursPattern   = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*h`)
	minutesPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*m`)
	secondsPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*s`)
)

// notVisited matches the LMS export marker for never-accessed enrollments
func notVisited(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "no visitado")
}

// ParseFloat parses a number accepting "," or "." as decimal separator
func ParseFloat(value string) (float64, bool) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0, false
	}
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// ParseTotalTime converts an "Xh Ym Zs" duration (components optional,
// case-insensitive) to fractional hours. "no visitado" parses as zero.
// Raw numeric strings fall through ParseFloat.
func ParseTotalTime(value string) (float64, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, false
	}
	if notVisited(trimmed) {
		return 0, true
	}

	matched := false
	total := 0.0
	if m := hoursPattern.FindStringSubmatch(trimmed); m != nil {
		if v, ok := ParseFloat(m[1]); ok {
			total += v
			matched = true
		}
	}
	if m := minutesPattern.FindStringSubmatch(trimmed); m != nil {
		if v, ok := ParseFloat(m[1]); ok {
			total += v / 60
			matched = true
		}
	}
	if m := secondsPattern.FindStringSubmatch(trimmed); m != nil {
		if v, ok := ParseFloat(m[1]); ok {
			total += v / 3600
			matched = true
		}
	}
	if matched {
		return total, true
	}

	return ParseFloat(trimmed)
}

var dayFirstLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
}

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate parses a date or date-time string. Inputs containing "/" are
// interpreted day-first; everything else is treated as ISO.
func ParseDate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || notVisited(trimmed) {
		return time.Time{}, false
	}

	layouts := isoLayouts
	if strings.Contains(trimmed, "/") {
		layouts = dayFirstLayouts
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// CoerceCell types a raw cell for rule and template contexts: booleans
// and numbers become typed values, empty cells become nil
func CoerceCell(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	switch strings.ToLower(trimmed) {
	case "true", "verdadero":
		return true
	case "false", "falso":
		return false
	}
	if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return parsed
	}
	return trimmed
}
