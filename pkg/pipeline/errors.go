package pipeline

import "fmt"

// MappingExecutionError is returned when a phase's error handler decides
// to abort rather than continue. It carries the stage that failed so
// callers can report which part of a mapping broke.
type MappingExecutionError struct {
	Phase string
	Stage string
	Err   error
}

func (e *MappingExecutionError) Error() string {
	return fmt.Sprintf("pipeline: stage %q in phase %q failed: %v", e.Stage, e.Phase, e.Err)
}

func (e *MappingExecutionError) Unwrap() error { return e.Err }
