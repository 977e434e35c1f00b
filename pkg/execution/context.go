// Package execution implements the execution context lifecycle (C6) and
// the four execution strategies (C5) that drive a pipeline over a single
// record or an ordered sequence.
package execution

import (
	"fmt"
	"sync"
	"time"
)

// State is the execution context's lifecycle state.
type State string

const (
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Progress tracks monotonic execution progress.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// RecordedError pairs a context-level error with the record that caused
// it, when known.
type RecordedError struct {
	Err    error                  `json:"-"`
	Record map[string]interface{} `json:"record,omitempty"`
	At     time.Time              `json:"at"`
}

// Warning is a non-fatal context annotation.
type Warning struct {
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	At       time.Time              `json:"at"`
}

// Context is the execution context (C6): the lifecycle state machine
// and bookkeeping every strategy threads through a pipeline execution.
// All mutating methods are safe for concurrent use, since the Stream
// and Parallel strategies invoke them from multiple goroutines.
type Context struct {
	mu sync.Mutex

	ID        string
	State     State
	StartTime time.Time
	EndTime   time.Time

	Progress Progress
	Errors   []RecordedError
	Warnings []Warning

	RetryCount    int
	RetryAttempts int
	BaseDelay     time.Duration

	Metrics *Metrics
	Result  interface{}
	FailErr error

	Metadata map[string]interface{}
}

// NewContext builds an initialized execution context. retryAttempts and
// baseDelay configure the exponential backoff used by GetRetryDelay.
func NewContext(id string, retryAttempts int, baseDelay time.Duration) *Context {
	return &Context{
		ID:            id,
		State:         StateInitialized,
		RetryAttempts: retryAttempts,
		BaseDelay:     baseDelay,
		Metrics:       NewMetrics(),
		Metadata:      make(map[string]interface{}),
	}
}

// Start transitions the context to running and records the start time.
func (c *Context) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = StateRunning
	c.StartTime = time.Now()
}

// UpdateProgress advances progress. Current never regresses: a call with
// a lower current than previously recorded is clamped to hold the
// existing value, preserving the monotonic-non-decreasing invariant.
func (c *Context) UpdateProgress(current, total int, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current < c.Progress.Current {
		current = c.Progress.Current
	}
	c.Progress.Current = current
	c.Progress.Total = total
	if message != "" {
		c.Progress.Message = message
	}
}

// AddError records a context-level error, optionally attributing it to
// the record being processed when the failure occurred.
func (c *Context) AddError(err error, record map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors = append(c.Errors, RecordedError{Err: err, Record: record, At: time.Now()})
}

// AddWarning records a non-fatal annotation.
func (c *Context) AddWarning(message string, metadata map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Warnings = append(c.Warnings, Warning{Message: message, Metadata: metadata, At: time.Now()})
}

// IncrementRetry increments the retry counter and reports whether a
// further retry is permitted (retryCount <= retryAttempts+1).
func (c *Context) IncrementRetry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RetryCount++
	return c.RetryCount <= c.RetryAttempts+1
}

// GetRetryDelay computes the exponential backoff delay for the current
// retry count: base * 2^(retryCount-1).
func (c *Context) GetRetryDelay() time.Duration {
	c.mu.Lock()
	retryCount := c.RetryCount
	base := c.BaseDelay
	c.mu.Unlock()

	if retryCount <= 0 {
		return 0
	}
	multiplier := 1 << uint(retryCount-1)
	return base * time.Duration(multiplier)
}

// Complete transitions the context to completed, recording the result
// and closing out the end time.
func (c *Context) Complete(result interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = StateCompleted
	c.Result = result
	c.EndTime = time.Now()
	if c.EndTime.Before(c.StartTime) {
		c.EndTime = c.StartTime
	}
}

// Fail transitions the context to failed.
func (c *Context) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = StateFailed
	c.FailErr = err
	c.EndTime = time.Now()
	if c.EndTime.Before(c.StartTime) {
		c.EndTime = c.StartTime
	}
}

// Cancel transitions the context to cancelled, recording the reason as
// a warning.
func (c *Context) Cancel(reason string) {
	c.mu.Lock()
	c.State = StateCancelled
	c.EndTime = time.Now()
	if c.EndTime.Before(c.StartTime) {
		c.EndTime = c.StartTime
	}
	c.mu.Unlock()
	c.AddWarning(fmt.Sprintf("cancelled: %s", reason), nil)
}

// ContextOverrides configures a child context derived from a parent.
type ContextOverrides struct {
	ID            string
	RetryAttempts *int
	BaseDelay     *time.Duration
}

// CreateChildContext derives a new context that inherits the parent's
// retry policy unless overridden, for fan-out executions (a Parallel or
// Batch strategy running one context per chunk).
func (c *Context) CreateChildContext(overrides ContextOverrides) *Context {
	c.mu.Lock()
	retryAttempts := c.RetryAttempts
	baseDelay := c.BaseDelay
	c.mu.Unlock()

	if overrides.RetryAttempts != nil {
		retryAttempts = *overrides.RetryAttempts
	}
	if overrides.BaseDelay != nil {
		baseDelay = *overrides.BaseDelay
	}

	id := overrides.ID
	if id == "" {
		id = c.ID + ".child"
	}
	return NewContext(id, retryAttempts, baseDelay)
}

// MergeChildContext folds a completed child context's errors, warnings,
// and metrics back into the parent. Progress is merged by taking the
// larger of the two totals and summing current counts, consistent with
// fan-out executions where each child tracks a disjoint shard.
func (c *Context) MergeChildContext(child *Context) {
	child.mu.Lock()
	errs := append([]RecordedError(nil), child.Errors...)
	warnings := append([]Warning(nil), child.Warnings...)
	childMetrics := child.Metrics.Snapshot()
	childProgress := child.Progress
	child.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors = append(c.Errors, errs...)
	c.Warnings = append(c.Warnings, warnings...)
	c.Metrics.merge(childMetrics)
	if childProgress.Total > c.Progress.Total {
		c.Progress.Total = childProgress.Total
	}
	c.Progress.Current += childProgress.Current
}

// ToRecord serializes the context to a plain map, e.g. for persistence
// or transport across a child-process boundary.
func (c *Context) ToRecord() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"id":         c.ID,
		"state":      string(c.State),
		"startTime":  c.StartTime,
		"endTime":    c.EndTime,
		"progress":   c.Progress,
		"retryCount": c.RetryCount,
	}
}

// FromRecord restores lifecycle fields previously captured by ToRecord.
func (c *Context) FromRecord(record map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := record["state"].(string); ok {
		c.State = State(state)
	}
	if id, ok := record["id"].(string); ok {
		c.ID = id
	}
	if retryCount, ok := record["retryCount"].(int); ok {
		c.RetryCount = retryCount
	}
	if startTime, ok := record["startTime"].(time.Time); ok {
		c.StartTime = startTime
	}
	if endTime, ok := record["endTime"].(time.Time); ok {
		c.EndTime = endTime
	}
	if progress, ok := record["progress"].(Progress); ok {
		c.Progress = progress
	}
	return nil
}
