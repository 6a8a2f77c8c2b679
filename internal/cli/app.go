package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"

	"github.com/fatih/color"

	"github.com/t77yq/cronthat/internal/clock"
	"github.com/t77yq/cronthat/internal/scheduler"
)

// Exit codes returned by App.Execute
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// Build information, set with -ldflags at release time
var (
	BuildVersion = "dev"
	BuildCommit  = "none"
	BuildDate    = "unknown"
)

// errStoppedOnError is reported when a failed run ends a stop-on-error schedule
var errStoppedOnError = errors.New("command exited with non-zero status code")

// App carries the process streams and time source shared by every command
type App struct {
	In      io.Reader
	Out     io.Writer
	Err     io.Writer
	Clock   clock.Clock
	Signals []os.Signal

	exitCode int
}

// NewApp creates an App bound to the process's standard streams
func NewApp() *App {
	return &App{
		In:      os.Stdin,
		Out:     os.Stdout,
		Err:     os.Stderr,
		Clock:   clock.Real(),
		Signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
}

// Execute runs the command line and returns the process exit code
func (a *App) Execute(ctx context.Context, args []string) int {
	a.exitCode = ExitOK

	root := NewRootCommand(a)
	root.SetArgs(args)
	root.SetIn(a.In)
	root.SetOut(a.Out)
	root.SetErr(a.Err)

	if err := root.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(a.Err, "error: %v\n", err)
		if a.exitCode == ExitOK {
			return ExitFailure
		}
	}
	return a.exitCode
}

// ExitCode maps a halted schedule to the process exit status
func ExitCode(report scheduler.Report) int {
	switch report.Outcome {
	case scheduler.OutcomeInterrupted:
		return ExitInterrupted
	case scheduler.OutcomeSpawnFailed:
		return ExitFailure
	case scheduler.OutcomePolicyStopped:
		if report.StoppedByError {
			return ExitFailure
		}
		return ExitOK
	default:
		return ExitOK
	}
}
