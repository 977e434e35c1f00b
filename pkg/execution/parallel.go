package execution

import (
	"context"
	"sync"
	"time"
)

const (
	defaultChunkSize      = 50
	defaultMaxConcurrency = 4
)

// ParallelOptions configures ParallelStrategy.
type ParallelOptions struct {
	ChunkSize      int
	MaxConcurrency int
	RecordTimeout  time.Duration
}

func parseParallelOptions(options map[string]interface{}) ParallelOptions {
	opts := ParallelOptions{
		ChunkSize:      optInt(options, "chunkSize", defaultChunkSize),
		MaxConcurrency: optInt(options, "maxConcurrency", defaultMaxConcurrency),
	}
	if d, ok := options["timeout"].(time.Duration); ok {
		opts.RecordTimeout = d
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	return opts
}

// ParallelStrategy runs chunks of records concurrently, bounded by
// maxConcurrency, with an optional per-record timeout. Output order is
// restored to match the input order regardless of completion order.
type ParallelStrategy struct {
	opts    ParallelOptions
	metrics *Metrics
}

func NewParallelStrategy(opts ParallelOptions) *ParallelStrategy {
	return &ParallelStrategy{opts: opts, metrics: NewMetrics()}
}

func (s *ParallelStrategy) Name() string { return "parallel" }

func (s *ParallelStrategy) Execute(ctx context.Context, data []map[string]interface{}, pipeline Pipeline, execCtx *Context) (Result, error) {
	start := time.Now()
	results := make([]map[string]interface{}, len(data))
	errs := make([]error, len(data))

	sem := make(chan struct{}, s.opts.MaxConcurrency)
	var wg sync.WaitGroup
	var completed int
	var mu sync.Mutex

	for _, idxBatch := range chunkIndices(len(data), s.opts.ChunkSize) {
		for _, idx := range idxBatch {
			sem <- struct{}{}
			wg.Add(1)

			record := data[idx]
			go func(idx int, rec map[string]interface{}) {
				defer wg.Done()
				defer func() { <-sem }()

				runCtx := ctx
				var cancel context.CancelFunc
				if s.opts.RecordTimeout > 0 {
					runCtx, cancel = context.WithTimeout(ctx, s.opts.RecordTimeout)
					defer cancel()
				}

				done := make(chan struct{})
				var out map[string]interface{}
				var err error
				go func() {
					out, err = pipeline.Execute(runCtx, rec, execCtx)
					close(done)
				}()

				select {
				case <-done:
				case <-runCtx.Done():
					err = ErrRecordTimeout
				}

				results[idx] = out
				errs[idx] = err

				mu.Lock()
				completed++
				n := completed
				mu.Unlock()
				execCtx.UpdateProgress(n, len(data), "")
			}(idx, record)
		}
	}

	wg.Wait()

	result := Result{Records: make([]map[string]interface{}, 0, len(data))}
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			execCtx.AddError(err, data[i])
			result.Errors = append(result.Errors, RecordedError{Err: err, Record: data[i], At: time.Now()})
			continue
		}
		result.Records = append(result.Records, results[i])
	}

	s.metrics.RecordExecution(time.Since(start), len(data), failed)
	return result, nil
}

func (s *ParallelStrategy) GetMetrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// chunkIndices splits [0,n) into contiguous index chunks of the given
// size, mirroring chunk's record-based chunking without needing to
// compare record values to recover original positions.
func chunkIndices(n, size int) [][]int {
	if size <= 0 {
		size = defaultChunkSize
	}
	var chunks [][]int
	for i := 0; i < n; i += size {
		end := i + size
		if end > n {
			end = n
		}
		idxs := make([]int, 0, end-i)
		for j := i; j < end; j++ {
			idxs = append(idxs, j)
		}
		chunks = append(chunks, idxs)
	}
	return chunks
}
