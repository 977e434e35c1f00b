package execution

import "errors"

var (
	ErrUnsupportedStrategyType = errors.New("execution: unsupported strategy type")
	ErrContextNotRunning       = errors.New("execution: context is not running")
	ErrRetriesExhausted        = errors.New("execution: retry attempts exhausted")
	ErrRecordTimeout           = errors.New("execution: record processing timed out")
)
