package emotion

import "errors"

var (
	// ErrNotIdle is returned when stimulation is started outside Idle.
	ErrNotIdle = errors.New("stimulation can only start from idle")
)
