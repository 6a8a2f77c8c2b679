package runner

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCommand is returned when a job carries no command
var ErrEmptyCommand = errors.New("no command to execute")

// SpawnError reports that the command could not be started at all, as
// opposed to a command that ran and exited with a non-zero status.
type SpawnError struct {
	Command []string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", strings.Join(e.Command, " "), e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
