package core

import (
	"errors"
	"fmt"
)

// ErrMalformedTask is returned when a task lacks the fields needed to name it.
// A lineage record without a name is useless, so this is never degraded.
var ErrMalformedTask = errors.New("malformed task")

// MalformedTaskError reports which identifying field of a task is missing.
type MalformedTaskError struct {
	Field string
}

func (e *MalformedTaskError) Error() string {
	return fmt.Sprintf("malformed task: missing %s", e.Field)
}

// Unwrap lets errors.Is match ErrMalformedTask.
func (e *MalformedTaskError) Unwrap() error {
	return ErrMalformedTask
}
