package models

import "encoding/json"

// EvaluatedRow pairs a normalized row with its rule evaluation results
type EvaluatedRow struct {
	Row         map[string]any  `json:"row"`
	RuleResults map[string]bool `json:"rule_results"`
}

// ChannelStats accumulates per-channel dispatch counters within one run
type ChannelStats struct {
	Matches           int `json:"matches"`
	Enqueued          int `json:"enqueued"`
	SkippedQuietHours int `json:"skipped_quiet_hours"`
	Errors            int `json:"errors"`
}

// DispatchSummary maps lower-cased channel names to their counters
type DispatchSummary map[string]*ChannelStats

// Channel returns the stats bucket for channel, creating it when absent
func (s DispatchSummary) Channel(channel string) *ChannelStats {
	stats, ok := s[channel]
	if !ok {
		stats = &ChannelStats{}
		s[channel] = stats
	}
	return stats
}

// JobPayload is the wire payload enqueued for background delivery
type JobPayload struct {
	Playbook    string          `json:"playbook,omitempty"`
	Action      map[string]any  `json:"action"`
	Row         map[string]any  `json:"row"`
	RuleResults map[string]bool `json:"rule_results"`
	JobID       string          `json:"job_id"`
}

// QueueMessage is the envelope stored on the background queue
type QueueMessage struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	JobID   string          `json:"job_id"`
}

// RunReport summarises one playbook execution
type RunReport struct {
	Playbook        string          `json:"playbook"`
	Mode            string          `json:"mode"`
	TotalRows       int             `json:"total_rows"`
	MatchedActions  int             `json:"matched_actions"`
	EnqueuedActions int             `json:"enqueued_actions"`
	Summary         DispatchSummary `json:"summary"`
}
