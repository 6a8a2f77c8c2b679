package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyShouldContinue(t *testing.T) {
	three, err := NewMaxRepetitionsPolicy(3)
	require.NoError(t, err)

	tests := []struct {
		name       string
		policy     Policy
		executions int
		exitCode   int
		want       bool
	}{
		{"Unbounded Success", NewUnboundedPolicy(), 100, 0, true},
		{"Unbounded Failure", NewUnboundedPolicy(), 1, 1, true},
		{"Unbounded Stop On Error", NewUnboundedPolicy().WithStopOnError(true), 1, 1, false},
		{"Unbounded Stop On Error Success", NewUnboundedPolicy().WithStopOnError(true), 1, 0, true},
		{"Repetitions Below Limit", three, 2, 0, true},
		{"Repetitions At Limit", three, 3, 0, false},
		{"Repetitions Ignore Failure", three, 1, 2, true},
		{"Repetitions Stop On Error", three.WithStopOnError(true), 1, 2, false},
		{"End At Keeps Going", NewEndAtPolicy(time.Now()), 50, 0, true},
		{"End At Stop On Error", NewEndAtPolicy(time.Now()).WithStopOnError(true), 1, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.ShouldContinue(State{Executions: tt.executions}, tt.exitCode)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyPermits(t *testing.T) {
	until := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	endAt := NewEndAtPolicy(until)
	assert.True(t, endAt.Permits(until.Add(-time.Second)))
	assert.True(t, endAt.Permits(until))
	assert.False(t, endAt.Permits(until.Add(time.Second)))

	assert.True(t, NewUnboundedPolicy().Permits(until.AddDate(100, 0, 0)))
	three, err := NewMaxRepetitionsPolicy(3)
	require.NoError(t, err)
	assert.True(t, three.Permits(until.AddDate(100, 0, 0)))
}

func TestNewMaxRepetitionsPolicy(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := NewMaxRepetitionsPolicy(n)
		assert.ErrorIs(t, err, ErrInvalidRepetitions)
	}

	p, err := NewMaxRepetitionsPolicy(1)
	require.NoError(t, err)
	assert.Equal(t, MaxRepetitions, p.Kind)
	assert.Equal(t, 1, p.Repetitions)
}

func TestPolicyFlagsAreCopies(t *testing.T) {
	base := NewUnboundedPolicy()
	flagged := base.WithStopOnError(true).WithRunImmediately(true)

	assert.False(t, base.StopOnError)
	assert.False(t, base.RunImmediately)
	assert.True(t, flagged.StopOnError)
	assert.True(t, flagged.RunImmediately)
}

func TestPolicyString(t *testing.T) {
	three, err := NewMaxRepetitionsPolicy(3)
	require.NoError(t, err)
	assert.Equal(t, "max-repetitions(3) stop_on_error=true run_immediately=false", three.WithStopOnError(true).String())

	until := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "end-at(2026-10-19T12:00:00Z) stop_on_error=false run_immediately=true", NewEndAtPolicy(until).WithRunImmediately(true).String())
	assert.Equal(t, "unbounded stop_on_error=false run_immediately=false", NewUnboundedPolicy().String())
}
