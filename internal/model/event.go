package model

import "time"

// RunEventType identifies what happened to a run
type RunEventType string

const (
	RunEventStarted  RunEventType = "started"
	RunEventFinished RunEventType = "finished"
)

// RunEvent is published for every execution start and finish
type RunEvent struct {
	ID          string       `json:"id"`
	RunID       string       `json:"run_id"`
	Type        RunEventType `json:"type"`
	Expression  string       `json:"expression"`
	Command     []string     `json:"command"`
	Sequence    int          `json:"sequence"`
	ScheduledAt time.Time    `json:"scheduled_at"`
	Timestamp   time.Time    `json:"timestamp"`
	ExitCode    *int         `json:"exit_code,omitempty"`
	Error       string       `json:"error,omitempty"`
}
