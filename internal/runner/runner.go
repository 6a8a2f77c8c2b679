package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultShell runs the command line as a shell script
const DefaultShell = "sh"

// Job is one execution request handed to a Runner
type Job struct {
	ID          string
	Command     []string
	Sequence    int
	ScheduledAt time.Time
}

// Runner executes a job synchronously and returns its exit code. A non-nil
// error means the command could not be run; a command that ran and failed
// reports a non-zero code and a nil error.
type Runner interface {
	Run(ctx context.Context, job Job) (int, error)
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, job Job) (int, error)

// Run calls f(ctx, job)
func (f RunnerFunc) Run(ctx context.Context, job Job) (int, error) {
	return f(ctx, job)
}

// ExecRunner runs jobs as child processes that share the parent's
// standard streams.
type ExecRunner struct {
	logger *zap.Logger
	shell  string
	dir    string
	env    []string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Option configures an ExecRunner
type Option func(*ExecRunner)

// WithShell runs the joined command line through shell -c. An empty shell
// executes the first argument directly.
func WithShell(shell string) Option {
	return func(r *ExecRunner) {
		r.shell = shell
	}
}

// WithWorkingDir sets the child's working directory
func WithWorkingDir(dir string) Option {
	return func(r *ExecRunner) {
		r.dir = dir
	}
}

// WithEnv adds KEY=VALUE pairs to the inherited environment
func WithEnv(env map[string]string) Option {
	return func(r *ExecRunner) {
		for k, v := range env {
			r.env = append(r.env, fmt.Sprintf("%s=%s", k, v))
		}
	}
}

// WithStdio replaces the inherited standard streams
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(r *ExecRunner) {
		r.stdin = stdin
		r.stdout = stdout
		r.stderr = stderr
	}
}

// NewExecRunner creates a new exec runner
func NewExecRunner(logger *zap.Logger, opts ...Option) *ExecRunner {
	r := &ExecRunner{
		logger: logger.Named("runner"),
		shell:  DefaultShell,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the command and waits for it to exit. The child is never
// killed when ctx is cancelled; it always runs to completion.
func (r *ExecRunner) Run(ctx context.Context, job Job) (int, error) {
	if len(job.Command) == 0 {
		return -1, &SpawnError{Command: job.Command, Err: ErrEmptyCommand}
	}

	cmd := r.command(job.Command)
	cmd.Dir = r.dir
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	cmd.Env = append(os.Environ(), r.env...)
	cmd.Env = append(cmd.Env,
		fmt.Sprintf("CRONTHAT_RUN_ID=%s", job.ID),
		fmt.Sprintf("CRONTHAT_SEQUENCE=%d", job.Sequence),
		fmt.Sprintf("CRONTHAT_SCHEDULED_AT=%s", job.ScheduledAt.Format(time.RFC3339)),
	)

	r.logger.Debug("Spawning command",
		zap.Strings("command", job.Command),
		zap.String("shell", r.shell),
		zap.Int("sequence", job.Sequence))

	if err := cmd.Start(); err != nil {
		return -1, &SpawnError{Command: job.Command, Err: err}
	}

	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	// The process ran but copying its output failed.
	if cmd.ProcessState != nil {
		r.logger.Warn("Command finished with I/O error",
			zap.Strings("command", job.Command),
			zap.Error(err))
		return cmd.ProcessState.ExitCode(), nil
	}
	return -1, &SpawnError{Command: job.Command, Err: err}
}

func (r *ExecRunner) command(argv []string) *exec.Cmd {
	if r.shell != "" {
		return exec.Command(r.shell, "-c", strings.Join(argv, " "))
	}
	return exec.Command(argv[0], argv[1:]...)
}
