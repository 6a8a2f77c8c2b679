package scheduler

import "errors"

var (
	// ErrSpawnFailed is returned when the command could not be started
	ErrSpawnFailed = errors.New("command could not be spawned")

	// ErrInvalidRepetitions is returned when a repetition limit is below one
	ErrInvalidRepetitions = errors.New("repetitions must be at least 1")
)
