package config

import "errors"

var (
	// ErrNoExpression is returned when no cron expression is given
	ErrNoExpression = errors.New("no cron expression given")

	// ErrNoCommand is returned when no command follows the expression
	ErrNoCommand = errors.New("no command given")

	// ErrMutuallyExclusive is returned when both repetitions and until are set
	ErrMutuallyExclusive = errors.New("repetitions and until are mutually exclusive")

	// ErrInvalidRepetitions is returned when repetitions is below one
	ErrInvalidRepetitions = errors.New("repetitions must be at least 1")

	// ErrInvalidUntil is returned when until cannot be parsed
	ErrInvalidUntil = errors.New("invalid until timestamp")

	// ErrInvalidTimezone is returned when the timezone is unknown
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidEnv is returned for an environment entry without '='
	ErrInvalidEnv = errors.New("invalid environment variable")
)
