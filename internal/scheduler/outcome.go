package scheduler

import "fmt"

// Outcome classifies why the loop halted
type Outcome int

const (
	// OutcomeInterrupted means cancellation was observed while waiting
	OutcomeInterrupted Outcome = iota + 1
	// OutcomeExhausted means the schedule has no further occurrence
	OutcomeExhausted
	// OutcomePolicyStopped means the termination policy ended the run
	OutcomePolicyStopped
	// OutcomeSpawnFailed means the command could not be started
	OutcomeSpawnFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomePolicyStopped:
		return "policy-stopped"
	case OutcomeSpawnFailed:
		return "spawn-failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Report is returned by Scheduler.Run once the loop halts
type Report struct {
	Outcome      Outcome
	Executions   int
	LastExitCode *int

	// StoppedByError is set when the policy halted because the last
	// execution exited non-zero and StopOnError was enabled.
	StoppedByError bool
}
