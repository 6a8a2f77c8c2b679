package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/cronthat/internal/clock"
	"github.com/t77yq/cronthat/internal/cronexpr"
	"github.com/t77yq/cronthat/internal/runner"
)

// Scheduler runs one command on one cron schedule until its policy, the
// schedule itself or a cancellation stops it. Executions never overlap.
type Scheduler struct {
	logger   *zap.Logger
	schedule *cronexpr.Schedule
	policy   Policy
	runner   runner.Runner
	clock    clock.Clock
	location *time.Location
	newID    func() string
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the real clock
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLocation evaluates the schedule in loc instead of the clock's zone
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

// WithIDGenerator replaces the run ID generator
func WithIDGenerator(newID func() string) Option {
	return func(s *Scheduler) {
		s.newID = newID
	}
}

// New creates a new scheduler
func New(schedule *cronexpr.Schedule, policy Policy, r runner.Runner, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:   logger.Named("scheduler"),
		schedule: schedule,
		policy:   policy,
		runner:   r,
		clock:    clock.Real(),
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// loopState is a node of the scheduler state machine:
// idle -> waiting -> executing -> deciding -> (waiting | halted).
type loopState int

const (
	stateIdle loopState = iota
	stateWaiting
	stateExecuting
	stateDeciding
	stateHalted
)

func (s loopState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateWaiting:
		return "waiting"
	case stateExecuting:
		return "executing"
	case stateDeciding:
		return "deciding"
	case stateHalted:
		return "halted"
	default:
		return fmt.Sprintf("loopState(%d)", int(s))
	}
}

// loop holds the working data of a single Run call.
type loop struct {
	*Scheduler
	command        []string
	state          State
	scheduled      time.Time
	outcome        Outcome
	stoppedByError bool
	err            error
}

// Run drives the loop until it halts. Cancelling ctx interrupts a wait
// but never an execution in progress; the command always runs to
// completion and cancellation is observed before the next wait.
//
// The returned error is non-nil only when the command could not be
// spawned, in which case the report's outcome is OutcomeSpawnFailed.
func (s *Scheduler) Run(ctx context.Context, command []string) (Report, error) {
	l := &loop{Scheduler: s, command: command}

	s.logger.Info("Starting schedule",
		zap.String("expression", s.schedule.Expression()),
		zap.Strings("command", command),
		zap.Stringer("policy", s.policy))

	for current := stateIdle; current != stateHalted; {
		next := l.step(ctx, current)
		s.logger.Debug("State transition",
			zap.Stringer("from", current),
			zap.Stringer("to", next))
		current = next
	}

	report := Report{
		Outcome:        l.outcome,
		Executions:     l.state.Executions,
		LastExitCode:   l.state.LastExitCode,
		StoppedByError: l.stoppedByError,
	}
	s.logger.Info("Schedule halted",
		zap.Stringer("outcome", report.Outcome),
		zap.Int("executions", report.Executions))
	return report, l.err
}

func (l *loop) step(ctx context.Context, current loopState) loopState {
	switch current {
	case stateIdle:
		return l.idle()
	case stateWaiting:
		return l.wait(ctx)
	case stateExecuting:
		return l.execute(ctx)
	case stateDeciding:
		return l.decide()
	default:
		panic(fmt.Sprintf("scheduler: no transition out of state %s", current))
	}
}

func (l *loop) idle() loopState {
	now := l.clock.Now()
	if !l.policy.RunImmediately {
		return l.plan(now)
	}
	if !l.policy.Permits(now) {
		return l.halt(OutcomePolicyStopped)
	}
	l.scheduled = now
	return stateExecuting
}

// plan computes the occurrence following from and moves to waiting.
func (l *loop) plan(from time.Time) loopState {
	if l.location != nil {
		from = from.In(l.location)
	}
	next, ok := l.schedule.Next(from)
	if !ok {
		l.logger.Info("Schedule has no further occurrence", zap.Time("after", from))
		return l.halt(OutcomeExhausted)
	}
	if !l.policy.Permits(next) {
		l.logger.Info("Next occurrence is past the end time",
			zap.Time("next_run", next),
			zap.Time("until", l.policy.Until))
		return l.halt(OutcomePolicyStopped)
	}

	l.scheduled = next
	l.logger.Info("Next run scheduled", zap.Time("next_run", next))
	return stateWaiting
}

func (l *loop) wait(ctx context.Context) loopState {
	if SleepUntil(ctx, l.clock, l.scheduled) == WakeCancelled {
		l.state.Cancelled = true
		return l.halt(OutcomeInterrupted)
	}
	return stateExecuting
}

func (l *loop) execute(ctx context.Context) loopState {
	job := runner.Job{
		ID:          l.newID(),
		Command:     l.command,
		Sequence:    l.state.Executions + 1,
		ScheduledAt: l.scheduled,
	}

	l.logger.Info("Executing command",
		zap.String("run_id", job.ID),
		zap.Int("sequence", job.Sequence),
		zap.Time("scheduled_at", job.ScheduledAt))

	// A cancellation must not abort the run or the bookkeeping around it.
	code, err := l.runner.Run(context.WithoutCancel(ctx), job)
	if err != nil {
		l.logger.Error("Failed to spawn command",
			zap.String("run_id", job.ID),
			zap.Error(err))
		l.err = fmt.Errorf("%w: %w", ErrSpawnFailed, err)
		return l.halt(OutcomeSpawnFailed)
	}

	l.state.LastExitCode = &code
	if code != 0 {
		l.logger.Warn("Command exited with non-zero status code",
			zap.String("run_id", job.ID),
			zap.Int("exit_code", code))
	}
	return stateDeciding
}

func (l *loop) decide() loopState {
	l.state.Executions++
	code := *l.state.LastExitCode
	if !l.policy.ShouldContinue(l.state, code) {
		l.stoppedByError = l.policy.StopOnError && code != 0
		return l.halt(OutcomePolicyStopped)
	}

	// An overrun delays the next occurrence; missed ones are not backfilled.
	from := l.clock.Now()
	if from.Before(l.scheduled) {
		from = l.scheduled
	}
	return l.plan(from)
}

func (l *loop) halt(outcome Outcome) loopState {
	l.outcome = outcome
	return stateHalted
}
