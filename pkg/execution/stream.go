package execution

import (
	"context"
	"sync"
	"time"
)

const (
	defaultHighWaterMark         = 1000
	defaultBackpressureThreshold = 750
)

// StreamOptions configures StreamStrategy.
type StreamOptions struct {
	HighWaterMark         int
	BackpressureThreshold int
	OnBackpressure        func(inFlight int)
}

func parseStreamOptions(options map[string]interface{}) StreamOptions {
	opts := StreamOptions{
		HighWaterMark:         optInt(options, "highWaterMark", defaultHighWaterMark),
		BackpressureThreshold: optInt(options, "backpressureThreshold", defaultBackpressureThreshold),
	}
	if fn, ok := options["onBackpressure"].(func(int)); ok {
		opts.OnBackpressure = fn
	}
	if opts.HighWaterMark <= 0 {
		opts.HighWaterMark = defaultHighWaterMark
	}
	if opts.BackpressureThreshold <= 0 || opts.BackpressureThreshold > opts.HighWaterMark {
		opts.BackpressureThreshold = defaultBackpressureThreshold
	}
	return opts
}

// StreamStrategy feeds records through a bounded in-flight queue that
// never holds more than highWaterMark records. When the in-flight count
// reaches backpressureThreshold it calls OnBackpressure, and calls it
// again only after the count has dropped below the threshold; admission
// itself continues until highWaterMark is reached.
// Output order matches input order despite concurrent processing.
type StreamStrategy struct {
	opts    StreamOptions
	metrics *Metrics

	mu       sync.Mutex
	paused   bool
	inFlight int
}

func NewStreamStrategy(opts StreamOptions) *StreamStrategy {
	return &StreamStrategy{opts: opts, metrics: NewMetrics()}
}

func (s *StreamStrategy) Name() string { return "stream" }

type streamSlot struct {
	input  map[string]interface{}
	record map[string]interface{}
	err    error
}

func (s *StreamStrategy) Execute(ctx context.Context, data []map[string]interface{}, pipeline Pipeline, execCtx *Context) (Result, error) {
	start := time.Now()
	slots := make([]streamSlot, len(data))
	sem := make(chan struct{}, s.opts.HighWaterMark)
	var wg sync.WaitGroup

	var completed int
	var mu sync.Mutex

	for i, record := range data {
		sem <- struct{}{}

		s.mu.Lock()
		s.inFlight++
		if s.inFlight >= s.opts.BackpressureThreshold && !s.paused {
			s.paused = true
			if s.opts.OnBackpressure != nil {
				s.opts.OnBackpressure(s.inFlight)
			}
		}
		s.mu.Unlock()

		wg.Add(1)
		go func(idx int, rec map[string]interface{}) {
			defer wg.Done()
			defer func() {
				<-sem
				s.mu.Lock()
				s.inFlight--
				if s.inFlight < s.opts.BackpressureThreshold {
					s.paused = false
				}
				s.mu.Unlock()
			}()

			out, err := pipeline.Execute(ctx, rec, execCtx)
			slots[idx] = streamSlot{input: rec, record: out, err: err}

			mu.Lock()
			completed++
			n := completed
			mu.Unlock()
			execCtx.UpdateProgress(n, len(data), "")
		}(i, record)
	}

	wg.Wait()

	result := Result{Records: make([]map[string]interface{}, 0, len(data))}
	failed := 0
	for _, slot := range slots {
		if slot.err != nil {
			failed++
			execCtx.AddError(slot.err, slot.input)
			result.Errors = append(result.Errors, RecordedError{Err: slot.err, Record: slot.input, At: time.Now()})
			continue
		}
		result.Records = append(result.Records, slot.record)
	}

	s.metrics.RecordExecution(time.Since(start), len(data), failed)
	return result, nil
}

func (s *StreamStrategy) GetMetrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}
