package execution

import (
	"context"
	"time"
)

const (
	defaultBatchSize  = 100
	defaultMaxBatches = 0 // 0 means unbounded
)

// BatchOptions configures BatchStrategy.
type BatchOptions struct {
	BatchSize           int
	MaxBatches          int
	StopOnError         bool
	DelayBetweenBatches time.Duration
}

func parseBatchOptions(options map[string]interface{}) BatchOptions {
	opts := BatchOptions{
		BatchSize:   optInt(options, "batchSize", defaultBatchSize),
		MaxBatches:  optInt(options, "maxBatches", defaultMaxBatches),
		StopOnError: optBool(options, "stopOnError", false),
	}
	if d, ok := options["delayBetweenBatches"].(time.Duration); ok {
		opts.DelayBetweenBatches = d
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return opts
}

// BatchStrategy splits the sequence into chunks and runs each chunk's
// records one after another.
type BatchStrategy struct {
	opts    BatchOptions
	metrics *Metrics
}

func NewBatchStrategy(opts BatchOptions) *BatchStrategy {
	return &BatchStrategy{opts: opts, metrics: NewMetrics()}
}

func (s *BatchStrategy) Name() string { return "batch" }

func (s *BatchStrategy) Execute(ctx context.Context, data []map[string]interface{}, pipeline Pipeline, execCtx *Context) (Result, error) {
	start := time.Now()
	result := Result{Records: make([]map[string]interface{}, 0, len(data))}
	failed := 0
	processed := 0

	batches := chunk(data, s.opts.BatchSize)
	if s.opts.MaxBatches > 0 && len(batches) > s.opts.MaxBatches {
		batches = batches[:s.opts.MaxBatches]
	}

	for batchIdx, batch := range batches {
		for _, record := range batch {
			out, err := pipeline.Execute(ctx, record, execCtx)
			processed++
			if err != nil {
				failed++
				execCtx.AddError(err, record)
				result.Errors = append(result.Errors, RecordedError{Err: err, Record: record, At: time.Now()})
				if s.opts.StopOnError {
					s.metrics.RecordExecution(time.Since(start), processed, failed)
					execCtx.UpdateProgress(processed, len(data), "")
					return result, err
				}
				continue
			}
			result.Records = append(result.Records, out)
		}
		execCtx.UpdateProgress(processed, len(data), "")

		if s.opts.DelayBetweenBatches > 0 && batchIdx < len(batches)-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(s.opts.DelayBetweenBatches):
			}
		}
	}

	s.metrics.RecordExecution(time.Since(start), processed, failed)
	return result, nil
}

func (s *BatchStrategy) GetMetrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

func chunk(data []map[string]interface{}, size int) [][]map[string]interface{} {
	if size <= 0 {
		size = defaultBatchSize
	}
	var chunks [][]map[string]interface{}
	for i := 0; i < len(data); i += size {
		end := i + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}
