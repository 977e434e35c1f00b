// Package pipeline implements the transformation pipeline (C4): a
// reusable, concurrency-safe sequencer that runs a mapping's stages in
// ordered phases, dispatching to per-phase error handlers and emitting
// lifecycle events to any registered listeners.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/strata-data/mapengine/pkg/execution"
	"github.com/strata-data/mapengine/pkg/mapping"
	"github.com/strata-data/mapengine/pkg/stages"
)

// Pipeline sequences a mapping's stages across the four fixed phases.
// A Pipeline is safe to invoke concurrently from different contexts:
// its own state (phases, middleware, listeners) is immutable after
// Build/On/Use stop being called from a single setup goroutine, and
// Execute carries all mutable per-invocation state on its own stack.
type Pipeline struct {
	mu         sync.RWMutex
	phases     []*phase
	middleware []Middleware
	listeners  []Listener

	mappingKey string
	mapping    *mapping.Mapping
	pools      stages.PoolProvider
}

// WithMapping attaches the mapping and pool provider that stages need
// at execution time, returning the same pipeline for chaining.
func (p *Pipeline) WithMapping(m *mapping.Mapping, pools stages.PoolProvider) *Pipeline {
	p.mappingKey = m.Key()
	p.pools = pools
	p.mapping = m
	return p
}

// Execute runs every phase in order against one record, satisfying
// pkg/execution's Pipeline contract so any Strategy can drive it. Each
// phase runs Use-registered middleware before and after its stages,
// then each stage in turn; a stage failure is routed to the phase's
// error handler, which may substitute data and continue or abort the
// whole pipeline with a MappingExecutionError.
func (p *Pipeline) Execute(ctx context.Context, data map[string]interface{}, execCtx *execution.Context) (map[string]interface{}, error) {
	p.mu.RLock()
	phases := p.phases
	mappingRef := p.mapping
	pools := p.pools
	p.mu.RUnlock()

	rc := stages.NewRuntimeContext(mappingRef, pools)
	current := data

	for _, ph := range phases {
		var err error
		current, err = p.runMiddleware(ctx, current, execCtx, MiddlewareBefore)
		if err != nil {
			return current, &MappingExecutionError{Phase: string(ph.name), Stage: "middleware:before", Err: err}
		}

		current, err = p.runPhase(ctx, ph, current, rc)
		if err != nil {
			return current, err
		}

		current, err = p.runMiddleware(ctx, current, execCtx, MiddlewareAfter)
		if err != nil {
			return current, &MappingExecutionError{Phase: string(ph.name), Stage: "middleware:after", Err: err}
		}
	}

	return current, nil
}

func (p *Pipeline) runPhase(ctx context.Context, ph *phase, data map[string]interface{}, rc *stages.RuntimeContext) (map[string]interface{}, error) {
	current := data
	for _, stage := range ph.stages {
		p.emit(Event{Type: EventStageStart, Phase: string(ph.name), Stage: stage.Name()})

		start := time.Now()
		out, err := stage.Apply(ctx, current, rc)
		elapsed := time.Since(start)

		if err != nil {
			p.emit(Event{Type: EventStageError, Phase: string(ph.name), Stage: stage.Name(), ExecutionTime: elapsed, Err: err})

			cont, next := ph.handler(stage.Name(), current, err)
			if !cont {
				return current, &MappingExecutionError{Phase: string(ph.name), Stage: stage.Name(), Err: err}
			}
			current = next
			continue
		}

		p.emit(Event{Type: EventStageComplete, Phase: string(ph.name), Stage: stage.Name(), ExecutionTime: elapsed})

		record, ok := out.(map[string]interface{})
		if !ok {
			// DataAggregation and other sequence-level stages return a
			// different shape; their report lives on rc.Reports and the
			// record stream continues unchanged.
			continue
		}
		current = record
	}
	return current, nil
}
