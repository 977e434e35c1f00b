package execution

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakePipeline struct {
	calls   int64
	failOn  func(map[string]interface{}) bool
	delay   time.Duration
	mutator func(map[string]interface{}) map[string]interface{}
}

func (f *fakePipeline) Execute(ctx context.Context, data map[string]interface{}, execCtx *Context) (map[string]interface{}, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failOn != nil && f.failOn(data) {
		return nil, errBoom
	}
	if f.mutator != nil {
		return f.mutator(data), nil
	}
	return data, nil
}

func records(n int) []map[string]interface{} {
	data := make([]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		data[i] = map[string]interface{}{"id": i}
	}
	return data
}

func TestSequentialStrategy_StopOnError(t *testing.T) {
	strategy := NewSequentialStrategy(SequentialOptions{StopOnError: true})
	pipeline := &fakePipeline{failOn: func(d map[string]interface{}) bool { return d["id"] == 2 }}
	execCtx := NewContext("seq", 0, 0)

	result, err := strategy.Execute(context.Background(), records(5), pipeline, execCtx)
	require.Error(t, err)
	assert.Len(t, result.Records, 2)
	assert.Equal(t, int64(3), pipeline.calls)
}

func TestSequentialStrategy_SkipOnError(t *testing.T) {
	strategy := NewSequentialStrategy(SequentialOptions{StopOnError: false})
	pipeline := &fakePipeline{failOn: func(d map[string]interface{}) bool { return d["id"] == 2 }}
	execCtx := NewContext("seq2", 0, 0)

	result, err := strategy.Execute(context.Background(), records(5), pipeline, execCtx)
	require.NoError(t, err)
	assert.Len(t, result.Records, 4)
	assert.Len(t, result.Errors, 1)
}

func TestBatchStrategy_ChunksAndMaxBatches(t *testing.T) {
	strategy := NewBatchStrategy(BatchOptions{BatchSize: 2, MaxBatches: 2})
	pipeline := &fakePipeline{}
	execCtx := NewContext("batch", 0, 0)

	result, err := strategy.Execute(context.Background(), records(10), pipeline, execCtx)
	require.NoError(t, err)
	assert.Len(t, result.Records, 4) // 2 batches * batchSize 2
	assert.Equal(t, int64(4), pipeline.calls)
}

func TestBatchStrategy_StopOnError(t *testing.T) {
	strategy := NewBatchStrategy(BatchOptions{BatchSize: 3, StopOnError: true})
	pipeline := &fakePipeline{failOn: func(d map[string]interface{}) bool { return d["id"] == 4 }}
	execCtx := NewContext("batch2", 0, 0)

	_, err := strategy.Execute(context.Background(), records(10), pipeline, execCtx)
	require.Error(t, err)
}

func TestStreamStrategy_PreservesOrderUnderConcurrency(t *testing.T) {
	strategy := NewStreamStrategy(StreamOptions{HighWaterMark: 8, BackpressureThreshold: 4})
	pipeline := &fakePipeline{
		delay: time.Millisecond,
		mutator: func(d map[string]interface{}) map[string]interface{} {
			return map[string]interface{}{"id": d["id"], "seen": true}
		},
	}
	execCtx := NewContext("stream", 0, 0)

	result, err := strategy.Execute(context.Background(), records(20), pipeline, execCtx)
	require.NoError(t, err)
	require.Len(t, result.Records, 20)
	for i, rec := range result.Records {
		assert.Equal(t, i, rec["id"])
	}
}

func TestStreamStrategy_TriggersBackpressureCallback(t *testing.T) {
	var triggered int64
	strategy := NewStreamStrategy(StreamOptions{
		HighWaterMark:         20,
		BackpressureThreshold: 3,
		OnBackpressure:        func(inFlight int) { atomic.AddInt64(&triggered, 1) },
	})
	pipeline := &fakePipeline{delay: 5 * time.Millisecond}
	execCtx := NewContext("stream2", 0, 0)

	_, err := strategy.Execute(context.Background(), records(20), pipeline, execCtx)
	require.NoError(t, err)
	assert.Greater(t, atomic.LoadInt64(&triggered), int64(0))
}

func TestParallelStrategy_RestoresOrder(t *testing.T) {
	strategy := NewParallelStrategy(ParallelOptions{ChunkSize: 3, MaxConcurrency: 4})
	pipeline := &fakePipeline{
		mutator: func(d map[string]interface{}) map[string]interface{} {
			return map[string]interface{}{"id": d["id"], "doubled": true}
		},
	}
	execCtx := NewContext("par", 0, 0)

	result, err := strategy.Execute(context.Background(), records(12), pipeline, execCtx)
	require.NoError(t, err)
	require.Len(t, result.Records, 12)
	for i, rec := range result.Records {
		assert.Equal(t, i, rec["id"])
	}
}

func TestParallelStrategy_PerRecordTimeout(t *testing.T) {
	strategy := NewParallelStrategy(ParallelOptions{ChunkSize: 5, MaxConcurrency: 5, RecordTimeout: 5 * time.Millisecond})
	pipeline := &fakePipeline{delay: 50 * time.Millisecond}
	execCtx := NewContext("par2", 0, 0)

	result, err := strategy.Execute(context.Background(), records(3), pipeline, execCtx)
	require.NoError(t, err)
	assert.Len(t, result.Errors, 3)
	for _, e := range result.Errors {
		assert.ErrorIs(t, e.Err, ErrRecordTimeout)
	}
}

func TestCreateStrategy_UnknownType(t *testing.T) {
	_, err := CreateStrategy("nonexistent", nil)
	assert.ErrorIs(t, err, ErrUnsupportedStrategyType)
}

func TestCreateStrategy_BuildsRegisteredTypes(t *testing.T) {
	for _, name := range []string{"sequential", "batch", "stream", "parallel"} {
		s, err := CreateStrategy(name, map[string]interface{}{})
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}
}
