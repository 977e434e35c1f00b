package facade

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/strata-data/mapengine/pkg/execution"
	"github.com/strata-data/mapengine/pkg/mapping"
)

// ProcessWithStreaming always resolves to the stream execution
// strategy, regardless of what the optimizer would otherwise
// recommend: a caller hitting this operation has explicitly asked for
// bounded, backpressure-aware streaming rather than the engine's
// default strategy selection.
func (e *Engine) ProcessWithStreaming(ctx context.Context, m *mapping.Mapping, dataArray []map[string]interface{}, opts ExecuteOptions) (StreamResult, error) {
	if m == nil {
		return StreamResult{}, ErrMappingNil
	}
	if dataArray == nil {
		return StreamResult{}, ErrDataNil
	}
	if !m.Active {
		return StreamResult{}, ErrMappingInactive
	}
	if err := m.Validate(); err != nil {
		return StreamResult{}, err
	}

	p := e.getOrBuildPipeline(m)
	executionID := uuid.New().String()

	strategyOpts := map[string]interface{}{
		"onBackpressure": func(inFlight int) {
			e.emit(Event{
				Type:        EventPerformanceWarning,
				MappingID:   m.ID,
				ExecutionID: executionID,
				Reasons:     []string{"stream backpressure threshold reached"},
			})
		},
	}
	if opts.BatchSize > 0 {
		strategyOpts["highWaterMark"] = opts.BatchSize
	}
	if opts.Parallelism > 0 {
		strategyOpts["backpressureThreshold"] = opts.Parallelism
	}

	strategy, err := execution.CreateStrategy("stream", strategyOpts)
	if err != nil {
		return StreamResult{}, err
	}

	execCtx := execution.NewContext(executionID, opts.retryAttempts(), opts.retryBaseDelay())
	execCtx.Start()

	runCtx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	start := time.Now()
	result, runErr := strategy.Execute(runCtx, dataArray, p, execCtx)
	elapsed := time.Since(start)
	execCtx.Complete(nil)

	errs := make([]error, 0, len(result.Errors))
	for _, re := range result.Errors {
		errs = append(errs, re.Err)
		_ = e.dlq.Enqueue(ctx, e.deadLetterEntry("processWithStreaming", re.Record, re.Err))
	}

	var throughput float64
	if elapsed > 0 {
		throughput = float64(len(dataArray)) / elapsed.Seconds()
	}

	e.metrics.RecordExecution(elapsed, len(dataArray), len(errs))
	e.optimizer.RecordBatchOutcome(runErr == nil && len(errs) == 0)
	if runErr != nil {
		e.emit(Event{Type: EventMappingError, MappingID: m.ID, ExecutionID: executionID, Err: runErr})
	} else {
		e.emit(Event{Type: EventMappingComplete, MappingID: m.ID, ExecutionID: executionID})
	}

	return StreamResult{
		Results:        result.Records,
		Errors:         errs,
		ProcessingTime: elapsed,
		Throughput:     throughput,
	}, runErr
}
