// Package facade implements the engine facade (C10): the entry point
// that ties the type mapper, stages, pipeline, execution strategies,
// execution context, error recovery, performance optimizer, and
// connection pool manager into the single executeMapping/executeBatch/
// processWithStreaming/validate surface callers actually use.
package facade

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/strata-data/mapengine/pkg/execution"
	"github.com/strata-data/mapengine/pkg/mapping"
	"github.com/strata-data/mapengine/pkg/perf"
	"github.com/strata-data/mapengine/pkg/pipeline"
	"github.com/strata-data/mapengine/pkg/pool"
	"github.com/strata-data/mapengine/pkg/recovery"
	"github.com/strata-data/mapengine/pkg/stages"
)

// EngineOptions configures a new Engine. Pools may be nil when no stage
// in use performs external lookups; every other collaborator is built
// with sane defaults when left zero-valued.
type EngineOptions struct {
	Pools              *pool.Manager
	PipelineCacheSize  int
	ResultCacheSize    int
	EnableResultCache  bool
	EnableOptimizer    bool
	MemoryBudgetBytes  uint64
	BreakerOptions     recovery.BreakerOptions
	DeadLetterCapacity int
	OnDeadLetter       func(recovery.DeadLetterEntry)
}

// Engine is the engine facade: the single collaborator a caller builds
// once and reuses across every mapping execution. Safe for concurrent
// use; its caches, breaker registry, dead-letter queue, and metrics are
// all independently synchronized.
type Engine struct {
	mu        sync.RWMutex
	listeners []Listener

	pools     stages.PoolProvider
	pipelines *pipelineCache
	results   *resultCache
	optimizer *perf.Optimizer
	probe     perf.ResourceProbe
	breakers  *recovery.Registry
	dlq       *recovery.DeadLetterQueue
	tx        *recovery.Manager
	metrics   *execution.Metrics

	enableResultCache bool
	enableOptimizer   bool
}

// NewEngine builds an Engine from its collaborators and tunables.
func NewEngine(opts EngineOptions) *Engine {
	memoryBudget := opts.MemoryBudgetBytes
	if memoryBudget == 0 {
		memoryBudget = 1 << 30
	}

	var pools stages.PoolProvider
	if opts.Pools != nil {
		pools = opts.Pools
	}

	return &Engine{
		pools:             pools,
		pipelines:         newPipelineCache(opts.PipelineCacheSize),
		results:           newResultCache(opts.ResultCacheSize),
		optimizer:         perf.NewOptimizer(),
		probe:             perf.NewRuntimeProbe(memoryBudget),
		breakers:          recovery.NewRegistry(opts.BreakerOptions),
		dlq:               recovery.NewDeadLetterQueue(opts.DeadLetterCapacity, opts.OnDeadLetter),
		tx:                recovery.NewManager(),
		metrics:           execution.NewMetrics(),
		enableResultCache: opts.EnableResultCache,
		enableOptimizer:   opts.EnableOptimizer,
	}
}

// getOrBuildPipeline resolves a compiled pipeline from the pipeline
// cache, building and caching one from the mapping's stage lists when
// this mapping version has not been seen before.
func (e *Engine) getOrBuildPipeline(m *mapping.Mapping) *pipeline.Pipeline {
	key := m.Key()
	if p, ok := e.pipelines.get(key); ok {
		return p
	}
	p := pipeline.FromMapping(m, nil).WithMapping(m, e.pools)
	e.pipelines.put(key, p)
	return p
}

// InvalidatePipeline drops a mapping version's compiled pipeline from
// the cache, forcing the next executeMapping call to rebuild it. Call
// this whenever a mapping's rules change under an existing id/version.
func (e *Engine) InvalidatePipeline(m *mapping.Mapping) {
	e.pipelines.invalidate(m.Key())
}

// ExecuteMapping runs mapping against data, following the facade's
// fixed sequence: validate, consult the result cache, resolve a
// pipeline, consult the optimizer for strategy selection, run the
// strategy inside a fresh execution context and transaction, and on
// failure hand off to error recovery before rolling back.
func (e *Engine) ExecuteMapping(ctx context.Context, m *mapping.Mapping, data map[string]interface{}, opts ExecuteOptions) (Result, error) {
	if m == nil {
		return Result{}, ErrMappingNil
	}
	if data == nil {
		return Result{}, ErrDataNil
	}
	if !m.Active {
		return Result{}, ErrMappingInactive
	}
	if err := m.Validate(); err != nil {
		return Result{}, err
	}

	executionID := uuid.New().String()
	mappingKey := m.Key()

	var cacheKey string
	if e.enableResultCache && !opts.ForceCacheMiss && opts.ExecutorType != "stream" {
		if key, err := resultCacheKey(mappingKey, data); err == nil {
			cacheKey = key
			if cached, ok := e.results.get(key); ok {
				return Result{Success: true, Output: cached, ExecutionID: executionID, MappingID: m.ID, CacheHit: true}, nil
			}
		}
	}

	p := e.getOrBuildPipeline(m)
	rec := e.recommend(m, 1)

	executorType := rec.ExecutorType
	if opts.ExecutorType != "" {
		executorType = opts.ExecutorType
	}
	strategy, err := execution.CreateStrategy(executorType, strategyOptions(opts, rec))
	if err != nil {
		return Result{}, err
	}

	breaker := e.breakers.Get(mappingKey)
	if !breaker.Allow() {
		_ = e.dlq.Enqueue(ctx, recovery.DeadLetterEntry{Stage: "circuit-open", Data: data, Err: recovery.ErrCircuitOpen})
		e.emit(Event{Type: EventMappingError, MappingID: m.ID, ExecutionID: executionID, Err: recovery.ErrCircuitOpen})
		return Result{}, recovery.ErrCircuitOpen
	}

	execCtx := execution.NewContext(executionID, opts.retryAttempts(), opts.retryBaseDelay())
	execCtx.Start()

	runCtx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	e.tx.StartTransaction(executionID)
	e.recordExecutionActions(executionID, m, data)

	strategyResult, runErr := strategy.Execute(runCtx, []map[string]interface{}{data}, p, execCtx)
	opErr := runErr
	if opErr == nil && len(strategyResult.Errors) > 0 {
		opErr = strategyResult.Errors[0].Err
	}

	if opErr != nil {
		breaker.Record(false)
		return e.recover(runCtx, execCtx, m, executionID, cacheKey, data, p, opErr)
	}

	breaker.Record(true)
	var out map[string]interface{}
	if len(strategyResult.Records) > 0 {
		out = strategyResult.Records[0]
	}
	execCtx.Complete(out)
	if err := e.tx.CommitTransaction(executionID); err != nil {
		log.Warn().Err(err).Str("executionId", executionID).Msg("facade: commit of untouched transaction failed")
	}
	if cacheKey != "" {
		e.results.put(cacheKey, out)
	}
	elapsed := time.Since(execCtx.StartTime)
	e.metrics.RecordExecution(elapsed, 1, 0)
	e.emit(Event{Type: EventMappingComplete, MappingID: m.ID, ExecutionID: executionID})

	return Result{
		Success:          true,
		Output:           out,
		ExecutionID:      executionID,
		MappingID:        m.ID,
		ExecutionTime:    elapsed,
		RecordsProcessed: 1,
		Metrics:          e.metrics.Snapshot(),
	}, nil
}

// recordExecutionActions journals the transaction's reversible steps
// before the strategy runs, so a failure partway through has something
// real for RollbackTransaction to undo rather than an empty action
// list. No stage in pkg/stages mutates its input record in place - each
// builds a fresh output map - so the first and only state-mutating
// action is restoring the caller's original record if that invariant
// is ever broken by a future stage; enrichment rules additionally get
// a descriptive, non-reversible entry recording that pool-backed
// lookups may have run, since es_lookup has no local state to undo.
func (e *Engine) recordExecutionActions(executionID string, m *mapping.Mapping, data map[string]interface{}) {
	snapshot := cloneRecord(data)
	_ = e.tx.RecordAction(executionID, recovery.Action{
		Name: "preserve-input-snapshot",
		Undo: func(ctx context.Context) error {
			for k := range data {
				delete(data, k)
			}
			for k, v := range snapshot {
				data[k] = v
			}
			return nil
		},
	})

	if len(m.EnrichmentRules) > 0 {
		_ = e.tx.RecordAction(executionID, recovery.Action{Name: "enrichment-lookups"})
	}
}

func cloneRecord(data map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(data))
	for k, v := range data {
		clone[k] = v
	}
	return clone
}

// recover hands a failed execution to pkg/recovery's strategy chain.
// RollbackFn is deliberately left unset: the chain's rollback strategy
// is reserved for callers that can undo partial effects mid-chain,
// whereas the facade always owns the final "otherwise roll back and
// propagate" step itself once retry and fallback are exhausted.
func (e *Engine) recover(ctx context.Context, execCtx *execution.Context, m *mapping.Mapping, executionID, cacheKey string, data map[string]interface{}, p *pipeline.Pipeline, opErr error) (Result, error) {
	result := recovery.HandleError(ctx, execCtx, opErr, recovery.Options{
		Stage: "executeMapping",
		Data:  data,
		RetryFn: func(c context.Context) (interface{}, error) {
			return p.Execute(c, data, execCtx)
		},
	})

	if result.Success {
		out, _ := result.Result.(map[string]interface{})
		execCtx.Complete(out)
		_ = e.tx.CommitTransaction(executionID)
		if cacheKey != "" {
			e.results.put(cacheKey, out)
		}
		elapsed := time.Since(execCtx.StartTime)
		e.metrics.RecordExecution(elapsed, 1, 0)
		e.emit(Event{Type: EventErrorRecovered, MappingID: m.ID, ExecutionID: executionID, Reasons: []string{string(result.Strategy)}})
		return Result{
			Success:          true,
			Output:           out,
			ExecutionID:      executionID,
			MappingID:        m.ID,
			ExecutionTime:    elapsed,
			RecordsProcessed: 1,
			Metrics:          e.metrics.Snapshot(),
		}, nil
	}

	execCtx.Fail(opErr)
	_ = e.dlq.Enqueue(ctx, recovery.DeadLetterEntry{Stage: "executeMapping", Data: data, Err: opErr})
	outcome, rbErr := e.tx.RollbackTransaction(ctx, executionID)
	if rbErr == nil {
		e.emit(Event{Type: EventTransactionRolledBack, MappingID: m.ID, ExecutionID: executionID, RolledBack: len(outcome.Partial) == 0})
	}
	e.metrics.RecordExecution(time.Since(execCtx.StartTime), 1, 1)
	e.emit(Event{Type: EventMappingError, MappingID: m.ID, ExecutionID: executionID, Err: opErr})

	return Result{Success: false, ExecutionID: executionID, MappingID: m.ID}, opErr
}

// recommend asks the optimizer for a strategy recommendation, or
// defaults to sequential execution when the optimizer is disabled.
// With the optimizer enabled, it raises a memoryPressure event when the
// sampled memory pressure is above 0.8, whatever strategy is chosen.
func (e *Engine) recommend(m *mapping.Mapping, dataSize int) perf.Recommendation {
	if !e.enableOptimizer {
		return perf.Recommendation{ExecutorType: "sequential"}
	}
	resources := e.probe.Sample()
	rec := e.optimizer.OptimizeExecutionStrategy(dataSize, perf.CalculateComplexity(m), resources)
	if resources.MemoryPressure > 0.8 {
		e.emit(Event{Type: EventMemoryPressure, MappingID: m.ID, Reasons: rec.Reasons})
	}
	return rec
}

// deadLetterEntry builds a dead-letter entry for a failed record,
// shared between ExecuteMapping's recovery path and ExecuteBatch.
func (e *Engine) deadLetterEntry(stage string, data map[string]interface{}, err error) recovery.DeadLetterEntry {
	return recovery.DeadLetterEntry{Stage: stage, Data: data, Err: err}
}

// GetMetrics returns the engine-wide execution metrics snapshot.
func (e *Engine) GetMetrics() execution.MetricsSnapshot {
	return e.metrics.Snapshot()
}

// ResetMetrics discards all accumulated metrics.
func (e *Engine) ResetMetrics() {
	e.metrics = execution.NewMetrics()
}

// Shutdown releases every pooled connection the engine's pool manager
// owns. The engine itself holds no other resources requiring explicit
// release.
func (e *Engine) Shutdown() {
	if mgr, ok := e.pools.(*pool.Manager); ok && mgr != nil {
		mgr.Shutdown()
	}
}
