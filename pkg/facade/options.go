package facade

import (
	"time"

	"github.com/strata-data/mapengine/pkg/execution"
	"github.com/strata-data/mapengine/pkg/perf"
)

const defaultExecutionTimeout = 30 * time.Second

// ExecuteOptions configures one executeMapping call, covering the
// configuration surface spec §6 lists as recognized engine options
// that are meaningful per-call rather than engine-wide.
type ExecuteOptions struct {
	Timeout          time.Duration
	ForceCacheMiss   bool
	DisableOptimizer bool
	ExecutorType     string // overrides the optimizer's recommendation when non-empty
	BatchSize        int
	Parallelism      int
	StopOnError      bool
	SkipFailedRecords bool
	RetryAttempts    int
	RetryBaseDelay   time.Duration
}

func (o ExecuteOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultExecutionTimeout
	}
	return o.Timeout
}

func (o ExecuteOptions) retryAttempts() int {
	if o.RetryAttempts <= 0 {
		return 3
	}
	return o.RetryAttempts
}

func (o ExecuteOptions) retryBaseDelay() time.Duration {
	if o.RetryBaseDelay <= 0 {
		return 100 * time.Millisecond
	}
	return o.RetryBaseDelay
}

// strategyOptions translates ExecuteOptions and the optimizer's
// recommendation into the untyped map execution.CreateStrategy expects.
func strategyOptions(o ExecuteOptions, rec perf.Recommendation) map[string]interface{} {
	opts := map[string]interface{}{
		"stopOnError":       o.StopOnError,
		"skipFailedRecords": o.SkipFailedRecords,
	}
	batchSize := o.BatchSize
	if batchSize <= 0 {
		batchSize = rec.BatchSize
	}
	if batchSize > 0 {
		opts["batchSize"] = batchSize
	}
	parallelism := o.Parallelism
	if parallelism <= 0 {
		parallelism = rec.Parallelism
	}
	if parallelism > 0 {
		opts["maxConcurrency"] = parallelism
	}
	return opts
}

// Result is the outcome of a single ExecuteMapping call.
type Result struct {
	Success          bool
	Output           map[string]interface{}
	ExecutionID      string
	MappingID        string
	ExecutionTime    time.Duration
	RecordsProcessed int
	CacheHit         bool
	Metrics          execution.MetricsSnapshot
}

// BatchResult is the outcome of ExecuteBatch: every input record's fate,
// partitioned into successes (in original order) and failures.
type BatchResult struct {
	Successes []map[string]interface{}
	Failures  []BatchFailure
}

// BatchFailure pairs a failed input record with its index and error.
type BatchFailure struct {
	Index int
	Data  map[string]interface{}
	Err   error
}

// StreamResult is the outcome of ProcessWithStreaming.
type StreamResult struct {
	Results        []map[string]interface{}
	Errors         []error
	ProcessingTime time.Duration
	Throughput     float64 // records per second
}

// ValidationResult is the outcome of Validate: a dry run of the
// pipeline against sample data plus the optimizer's analysis of it.
type ValidationResult struct {
	Valid      bool
	Errors     []string
	Complexity float64
	Resources  perf.Recommendation
}
