package scheduler

import (
	"fmt"
	"time"
)

// PolicyKind selects which stop condition a Policy applies
type PolicyKind int

const (
	// Unbounded runs until interrupted or stopped by an error
	Unbounded PolicyKind = iota
	// MaxRepetitions stops after a fixed number of executions
	MaxRepetitions
	// EndAt stops before the first occurrence later than a deadline
	EndAt
)

func (k PolicyKind) String() string {
	switch k {
	case Unbounded:
		return "unbounded"
	case MaxRepetitions:
		return "max-repetitions"
	case EndAt:
		return "end-at"
	default:
		return fmt.Sprintf("PolicyKind(%d)", int(k))
	}
}

// Policy decides when the loop stops. Exactly one kind is active; the
// StopOnError and RunImmediately flags apply to every kind.
type Policy struct {
	Kind           PolicyKind
	Repetitions    int
	Until          time.Time
	StopOnError    bool
	RunImmediately bool
}

// NewUnboundedPolicy creates a policy without an execution limit
func NewUnboundedPolicy() Policy {
	return Policy{Kind: Unbounded}
}

// NewMaxRepetitionsPolicy creates a policy that stops after n executions
func NewMaxRepetitionsPolicy(n int) (Policy, error) {
	if n < 1 {
		return Policy{}, fmt.Errorf("%w: got %d", ErrInvalidRepetitions, n)
	}
	return Policy{Kind: MaxRepetitions, Repetitions: n}, nil
}

// NewEndAtPolicy creates a policy that never fires after until
func NewEndAtPolicy(until time.Time) Policy {
	return Policy{Kind: EndAt, Until: until}
}

// WithStopOnError returns a copy of p with StopOnError set
func (p Policy) WithStopOnError(stop bool) Policy {
	p.StopOnError = stop
	return p
}

// WithRunImmediately returns a copy of p with RunImmediately set
func (p Policy) WithRunImmediately(run bool) Policy {
	p.RunImmediately = run
	return p
}

// ShouldContinue is consulted after every execution, with state already
// counting that execution.
func (p Policy) ShouldContinue(state State, exitCode int) bool {
	if p.StopOnError && exitCode != 0 {
		return false
	}
	if p.Kind == MaxRepetitions {
		return state.Executions < p.Repetitions
	}
	return true
}

// Permits is consulted before waiting for an occurrence. Only EndAt
// rejects instants, and only those strictly after its deadline.
func (p Policy) Permits(next time.Time) bool {
	if p.Kind == EndAt {
		return !next.After(p.Until)
	}
	return true
}

func (p Policy) String() string {
	var limit string
	switch p.Kind {
	case MaxRepetitions:
		limit = fmt.Sprintf("%s(%d)", p.Kind, p.Repetitions)
	case EndAt:
		limit = fmt.Sprintf("%s(%s)", p.Kind, p.Until.Format(time.RFC3339))
	default:
		limit = p.Kind.String()
	}
	return fmt.Sprintf("%s stop_on_error=%t run_immediately=%t", limit, p.StopOnError, p.RunImmediately)
}

// State is the loop's working state. It is owned by a single Run call.
type State struct {
	Executions   int
	LastExitCode *int
	Cancelled    bool
}
