package models

import (
	"fmt"
	"time"
)

// QuietHours is the daily wall-clock window where live notifications are
// suppressed. Windows may span midnight (start > end).
type QuietHours struct {
	Start time.Duration // Offset from midnight
	End   time.Duration
}

// ParseQuietHours builds a window from "HH:MM" wall-clock strings
func ParseQuietHours(start, end string) (*QuietHours, error) {
	startOffset, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("invalid quiet_hours start %q: %w", start, err)
	}
	endOffset, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("invalid quiet_hours end %q: %w", end, err)
	}
	return &QuietHours{Start: startOffset, End: endOffset}, nil
}

// Allows reports whether now falls outside the quiet window.
// The caller fixes the timezone by converting now beforehand.
func (q *QuietHours) Allows(now time.Time) bool {
	current := time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second

	if q.Start < q.End {
		return !(q.Start <= current && current < q.End)
	}
	// Window spans midnight
	return q.End <= current && current < q.Start
}

func parseClock(value string) (time.Duration, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}
