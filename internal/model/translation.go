package model

import "time"

// Translation status constants.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether status is a final state.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Translation is the history record of one translation request. The input
// text itself is not stored, only its hash and length.
type Translation struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	Model          string     `json:"model"`
	SourceLanguage string     `json:"source_language"`
	TargetLanguage string     `json:"target_language"`
	InputHash      string     `json:"input_hash"`
	InputChars     int        `json:"input_chars"`
	OutputChars    *int       `json:"output_chars,omitempty"`
	Error          string     `json:"error,omitempty"`
	DurationMS     *int       `json:"duration_ms,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}
