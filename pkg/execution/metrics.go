package execution

import (
	"sync"
	"time"
)

// Metrics accumulates the counters every strategy's getMetrics() call
// exposes: executionCount, recordsProcessed, averageExecutionTime, and
// errorRate.
type Metrics struct {
	mu                 sync.Mutex
	executionCount     int64
	recordsProcessed   int64
	recordsFailed      int64
	totalExecutionTime time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordExecution folds one pipeline invocation's outcome into the
// running totals.
func (m *Metrics) RecordExecution(duration time.Duration, recordCount int, failedCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executionCount++
	m.recordsProcessed += int64(recordCount)
	m.recordsFailed += int64(failedCount)
	m.totalExecutionTime += duration
}

// MetricsSnapshot is the immutable point-in-time view returned by
// GetMetrics.
type MetricsSnapshot struct {
	ExecutionCount       int64         `json:"executionCount"`
	RecordsProcessed     int64         `json:"recordsProcessed"`
	AverageExecutionTime time.Duration `json:"averageExecutionTime"`
	ErrorRate            float64       `json:"errorRate"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var avg time.Duration
	if m.executionCount > 0 {
		avg = m.totalExecutionTime / time.Duration(m.executionCount)
	}
	var errorRate float64
	if m.recordsProcessed > 0 {
		errorRate = float64(m.recordsFailed) / float64(m.recordsProcessed)
	}

	return MetricsSnapshot{
		ExecutionCount:       m.executionCount,
		RecordsProcessed:     m.recordsProcessed,
		AverageExecutionTime: avg,
		ErrorRate:            errorRate,
	}
}

func (m *Metrics) merge(other MetricsSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executionCount += other.ExecutionCount
	m.recordsProcessed += other.RecordsProcessed
	failed := int64(other.ErrorRate * float64(other.RecordsProcessed))
	m.recordsFailed += failed
	m.totalExecutionTime += other.AverageExecutionTime * time.Duration(other.ExecutionCount)
}
