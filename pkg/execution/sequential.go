package execution

import (
	"context"
	"time"
)

// SequentialOptions configures SequentialStrategy.
type SequentialOptions struct {
	StopOnError bool
}

func parseSequentialOptions(options map[string]interface{}) SequentialOptions {
	return SequentialOptions{StopOnError: optBool(options, "stopOnError", false)}
}

// SequentialStrategy runs the pipeline once per record, in order.
type SequentialStrategy struct {
	opts    SequentialOptions
	metrics *Metrics
}

func NewSequentialStrategy(opts SequentialOptions) *SequentialStrategy {
	return &SequentialStrategy{opts: opts, metrics: NewMetrics()}
}

func (s *SequentialStrategy) Name() string { return "sequential" }

func (s *SequentialStrategy) Execute(ctx context.Context, data []map[string]interface{}, pipeline Pipeline, execCtx *Context) (Result, error) {
	start := time.Now()
	result := Result{Records: make([]map[string]interface{}, 0, len(data))}
	failed := 0

	for i, record := range data {
		out, err := pipeline.Execute(ctx, record, execCtx)
		if err != nil {
			failed++
			execCtx.AddError(err, record)
			result.Errors = append(result.Errors, RecordedError{Err: err, Record: record, At: time.Now()})
			if s.opts.StopOnError {
				s.metrics.RecordExecution(time.Since(start), len(data), failed)
				execCtx.UpdateProgress(i+1, len(data), "")
				return result, err
			}
			continue
		}
		result.Records = append(result.Records, out)
		execCtx.UpdateProgress(i+1, len(data), "")
	}

	s.metrics.RecordExecution(time.Since(start), len(data), failed)
	return result, nil
}

func (s *SequentialStrategy) GetMetrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}
