package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/cronthat/internal/model"
	"github.com/t77yq/cronthat/internal/monitor"
	"github.com/t77yq/cronthat/internal/runner"
)

// Recorder is a runner.Runner that writes a history record around every
// execution of the wrapped runner. History failures are logged and never
// change the outcome of a run.
type Recorder struct {
	logger     *zap.Logger
	next       runner.Runner
	history    RunHistory
	sampler    monitor.Sampler
	expression string
	now        func() time.Time
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithSampler attaches a host snapshot to every record
func WithSampler(sampler monitor.Sampler) RecorderOption {
	return func(r *Recorder) {
		r.sampler = sampler
	}
}

// WithNow replaces the time source used for start and completion times
func WithNow(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a new recorder around next
func NewRecorder(next runner.Runner, history RunHistory, expression string, logger *zap.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		logger:     logger.Named("recorder"),
		next:       next,
		history:    history,
		expression: expression,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run implements runner.Runner
func (r *Recorder) Run(ctx context.Context, job runner.Job) (int, error) {
	record := &model.RunRecord{
		ID:          job.ID,
		Expression:  r.expression,
		Command:     job.Command,
		Sequence:    job.Sequence,
		Status:      model.RunStatusRunning,
		ScheduledAt: job.ScheduledAt,
		StartedAt:   r.now(),
	}

	if r.sampler != nil {
		host, err := r.sampler.Sample(ctx)
		if err != nil {
			r.logger.Warn("Failed to sample host", zap.String("run_id", job.ID), zap.Error(err))
		} else {
			record.Host = host
		}
	}

	stored := true
	if err := r.history.Store(ctx, record); err != nil {
		stored = false
		r.logger.Error("Failed to store run record", zap.String("run_id", job.ID), zap.Error(err))
	}

	code, runErr := r.next.Run(ctx, job)

	completedAt := r.now()
	record.CompletedAt = &completedAt
	record.Duration = completedAt.Sub(record.StartedAt)
	if runErr != nil {
		record.Status = model.RunStatusSpawnFailed
		record.Error = runErr.Error()
	} else {
		record.Status = model.StatusForExit(code)
		record.ExitCode = &code
	}

	if stored {
		if err := r.history.Update(ctx, record); err != nil {
			r.logger.Error("Failed to update run record", zap.String("run_id", job.ID), zap.Error(err))
		}
	}

	return code, runErr
}
