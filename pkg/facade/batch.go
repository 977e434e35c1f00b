package facade

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/strata-data/mapengine/pkg/execution"
	"github.com/strata-data/mapengine/pkg/mapping"
)

// identity returns a map value's underlying pointer, used to recover a
// failed record's original position in the input slice: the execution
// strategies hand back the exact map reference they were given on
// failure, so pointer identity (not content equality) is safe even
// when two input records are byte-for-byte identical.
func identity(m map[string]interface{}) uintptr {
	return reflect.ValueOf(m).Pointer()
}

func indexByIdentity(dataArray []map[string]interface{}) map[uintptr]int {
	idx := make(map[uintptr]int, len(dataArray))
	for i, rec := range dataArray {
		idx[identity(rec)] = i
	}
	return idx
}

// ExecuteBatch runs mapping over every record in dataArray through a
// single resolved pipeline and execution strategy (batch by default,
// or the optimizer's/caller's choice), reporting per-record successes
// and failures rather than aborting the whole call on the first error
// unless ExecuteOptions.StopOnError is set.
func (e *Engine) ExecuteBatch(ctx context.Context, m *mapping.Mapping, dataArray []map[string]interface{}, opts ExecuteOptions) (BatchResult, error) {
	if m == nil {
		return BatchResult{}, ErrMappingNil
	}
	if dataArray == nil {
		return BatchResult{}, ErrBatchDataShape
	}
	if !m.Active {
		return BatchResult{}, ErrMappingInactive
	}
	if err := m.Validate(); err != nil {
		return BatchResult{}, err
	}
	if len(dataArray) == 0 {
		return BatchResult{}, nil
	}

	p := e.getOrBuildPipeline(m)
	rec := e.recommend(m, len(dataArray))

	executorType := opts.ExecutorType
	if executorType == "" {
		executorType = rec.ExecutorType
	}
	if executorType == "" || executorType == "sequential" {
		executorType = "batch"
	}

	strategy, err := execution.CreateStrategy(executorType, strategyOptions(opts, rec))
	if err != nil {
		return BatchResult{}, err
	}

	executionID := uuid.New().String()
	execCtx := execution.NewContext(executionID, opts.retryAttempts(), opts.retryBaseDelay())
	execCtx.Start()

	runCtx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	strategyResult, runErr := strategy.Execute(runCtx, dataArray, p, execCtx)

	positions := indexByIdentity(dataArray)
	batchResult := BatchResult{Successes: strategyResult.Records}
	for _, re := range strategyResult.Errors {
		batchResult.Failures = append(batchResult.Failures, BatchFailure{
			Index: positions[identity(re.Record)],
			Data:  re.Record,
			Err:   re.Err,
		})
		_ = e.dlq.Enqueue(ctx, e.deadLetterEntry("executeBatch", re.Record, re.Err))
	}

	execCtx.Complete(nil)
	e.metrics.RecordExecution(time.Since(execCtx.StartTime), len(dataArray), len(batchResult.Failures))
	e.optimizer.RecordBatchOutcome(runErr == nil && len(batchResult.Failures) == 0)

	if runErr != nil {
		execCtx.Fail(runErr)
		e.emit(Event{Type: EventMappingError, MappingID: m.ID, ExecutionID: executionID, Err: runErr})
		return batchResult, runErr
	}

	e.emit(Event{Type: EventMappingComplete, MappingID: m.ID, ExecutionID: executionID})
	return batchResult, nil
}
