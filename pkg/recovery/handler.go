// Package recovery implements error recovery and rollback (C7): a
// strategy chain tried in order on stage failure, a per-resource
// circuit breaker, a dead-letter queue for irrecoverable items, and a
// rollback manager for reversing partially-applied actions.
package recovery

import (
	"context"
	"time"
)

// Strategy names the recovery strategy that ultimately handled an
// error.
type Strategy string

const (
	StrategyRetry            Strategy = "retry"
	StrategyFallbackValue    Strategy = "fallback_value"
	StrategyFallbackFunction Strategy = "fallback_function"
	StrategySkipAndLog       Strategy = "skip_and_log"
	StrategyRollback         Strategy = "rollback"
)

// Result is handleError's outcome.
type Result struct {
	Success  bool
	Result   interface{}
	Strategy Strategy
	Err      error
}

// RetryContext is the subset of an execution context a retry needs:
// the ability to track and bound retry attempts with backoff. This is
// declared locally rather than importing pkg/execution so recovery
// stays usable independent of which context type drives it; a
// *execution.Context satisfies it directly.
type RetryContext interface {
	IncrementRetry() bool
	GetRetryDelay() time.Duration
}

// Options configures one handleError invocation. RetryFn re-executes
// the failed operation; RollbackFn undoes its partial effects.
// FallbackValue and FallbackFunction are tried in order after RETRY is
// exhausted or inapplicable.
type Options struct {
	Stage            string
	Data             interface{}
	RetryFn          func(ctx context.Context) (interface{}, error)
	RollbackFn       func(ctx context.Context) error
	FallbackValue    interface{}
	HasFallbackValue bool
	FallbackFunction func(ctx context.Context) (interface{}, error)
}

// HandleError runs the five-strategy recovery chain against a failed
// operation, in the order the spec fixes: retry, fallback value,
// fallback function, skip-and-log, rollback.
func HandleError(ctx context.Context, execCtx RetryContext, err error, opts Options) Result {
	if opts.RetryFn != nil && isRetriable(err) && execCtx != nil && execCtx.IncrementRetry() {
		delay := execCtx.GetRetryDelay()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Result{Success: false, Strategy: StrategyRetry, Err: ctx.Err()}
			}
		}
		if result, retryErr := opts.RetryFn(ctx); retryErr == nil {
			return Result{Success: true, Result: result, Strategy: StrategyRetry}
		}
	}

	if opts.HasFallbackValue {
		return Result{Success: true, Result: opts.FallbackValue, Strategy: StrategyFallbackValue}
	}

	if opts.FallbackFunction != nil {
		if result, fbErr := opts.FallbackFunction(ctx); fbErr == nil {
			return Result{Success: true, Result: result, Strategy: StrategyFallbackFunction}
		}
	}

	if opts.RollbackFn == nil {
		return Result{Success: false, Result: opts.Data, Strategy: StrategySkipAndLog, Err: err}
	}

	if rbErr := opts.RollbackFn(ctx); rbErr != nil {
		return Result{Success: false, Strategy: StrategyRollback, Err: rbErr}
	}
	return Result{Success: false, Strategy: StrategyRollback, Err: err}
}
