package storage

import "errors"

var (
	// ErrRecordNotFound is returned when a run record does not exist
	ErrRecordNotFound = errors.New("run record not found")

	// ErrInvalidFilter is returned when a filter names an unknown column
	ErrInvalidFilter = errors.New("invalid filter")
)
