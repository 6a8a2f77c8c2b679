package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/cronthat/internal/model"
	"github.com/t77yq/cronthat/internal/runner"
)

const (
	// DefaultStream is the JetStream stream run events are stored in
	DefaultStream = "CRONTHAT"

	// SubjectPrefix prefixes the subject of every run event
	SubjectPrefix = "cronthat.run"

	publishTimeout = 5 * time.Second
)

// Subject returns the subject an event type is published on
func Subject(eventType model.RunEventType) string {
	return SubjectPrefix + "." + string(eventType)
}

// EnsureStream creates the run event stream unless it already exists
func EnsureStream(js nats.JetStreamContext, name string) error {
	stream, err := js.StreamInfo(name)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}
	if stream != nil {
		return nil
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{SubjectPrefix + ".*"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Publisher is a runner.Runner that publishes a started and a finished
// event around every execution of the wrapped runner. Publish failures are
// logged and never change the outcome of a run.
type Publisher struct {
	logger     *zap.Logger
	js         nats.JetStreamContext
	next       runner.Runner
	expression string
	now        func() time.Time
}

// NewPublisher creates a new event publisher around next
func NewPublisher(js nats.JetStreamContext, next runner.Runner, expression string, logger *zap.Logger) *Publisher {
	return &Publisher{
		logger:     logger.Named("events"),
		js:         js,
		next:       next,
		expression: expression,
		now:        time.Now,
	}
}

// Run implements runner.Runner
func (p *Publisher) Run(ctx context.Context, job runner.Job) (int, error) {
	p.publish(ctx, p.event(job, model.RunEventStarted))

	code, err := p.next.Run(ctx, job)

	finished := p.event(job, model.RunEventFinished)
	if err != nil {
		finished.Error = err.Error()
	} else {
		finished.ExitCode = &code
	}
	p.publish(ctx, finished)

	return code, err
}

func (p *Publisher) event(job runner.Job, eventType model.RunEventType) *model.RunEvent {
	return &model.RunEvent{
		ID:          uuid.New().String(),
		RunID:       job.ID,
		Type:        eventType,
		Expression:  p.expression,
		Command:     job.Command,
		Sequence:    job.Sequence,
		ScheduledAt: job.ScheduledAt,
		Timestamp:   p.now(),
	}
}

func (p *Publisher) publish(ctx context.Context, event *model.RunEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal run event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	subject := Subject(event.Type)
	if _, err := p.js.Publish(subject, data, nats.Context(ctx), nats.MsgId(event.ID)); err != nil {
		p.logger.Warn("Failed to publish run event",
			zap.String("subject", subject),
			zap.String("run_id", event.RunID),
			zap.Error(err))
		return
	}

	p.logger.Debug("Published run event",
		zap.String("subject", subject),
		zap.String("run_id", event.RunID))
}
