package model

import "time"

// RunStatus represents the state of a single command execution
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusSucceeded   RunStatus = "succeeded"
	RunStatusFailed      RunStatus = "failed"
	RunStatusSpawnFailed RunStatus = "spawn_failed"
)

// StatusForExit maps an exit code to a terminal run status
func StatusForExit(exitCode int) RunStatus {
	if exitCode == 0 {
		return RunStatusSucceeded
	}
	return RunStatusFailed
}

// RunRecord is one execution of the scheduled command
type RunRecord struct {
	ID          string     `json:"id"`
	Expression  string     `json:"expression"`
	Command     []string   `json:"command"`
	Sequence    int        `json:"sequence"`
	Status      RunStatus  `json:"status"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	Error       string     `json:"error,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Duration time.Duration `json:"duration,omitempty"`
	Host     *HostStats    `json:"host,omitempty"`
}
