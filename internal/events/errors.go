package events

import "errors"

// ErrNotConnected is returned when the NATS server cannot be reached
var ErrNotConnected = errors.New("not connected to NATS")
