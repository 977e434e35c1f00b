// Package stages implements the transformation stages (C3): the
// individual, named units of work a pipeline phase sequences together.
// Each stage is stateless; any per-invocation state lives on the
// RuntimeContext passed into Apply.
package stages

import (
	"context"

	"github.com/strata-data/mapengine/pkg/mapping"
)

// Stage is the common contract every transformation stage satisfies.
// Input and output are left as interface{} for uniformity, but every
// stage - including DataAggregation - operates on a single record
// (map[string]interface{}); sequence-shaped data is always a field
// nested within that record, never the top-level input.
type Stage interface {
	Name() string
	Apply(ctx context.Context, input interface{}, rc *RuntimeContext) (interface{}, error)
}

// PoolProvider is the subset of the connection pool manager (C9) that
// enrichment lookups need. It is declared here, not imported from
// pkg/pool, so that stages stay decoupled from any one pool
// implementation; pkg/facade wires the real pool.Manager into it.
type PoolProvider interface {
	Acquire(ctx context.Context, poolName string) (interface{}, error)
	Release(poolName string, conn interface{})
}

// ValidationReport is the DataValidation stage's side output.
type ValidationReport struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// QualityReport is the DataQualityCheck stage's side output.
type QualityReport struct {
	Score     float64
	Threshold float64
	Passed    bool
	Breakdown map[string]float64
}

// AggregationReport is the DataAggregation stage's side output.
type AggregationReport struct {
	Groups map[string]map[string]float64 // groupKey -> field -> aggregated value
}

// RuntimeContext carries the mapping being executed and any
// stage-to-stage side channels: reports stages stash for inspection by
// later stages, the pipeline, or the caller, and an optional pool
// provider for enrichment lookups.
type RuntimeContext struct {
	Mapping *mapping.Mapping
	Pools   PoolProvider
	Reports map[string]interface{}
}

// NewRuntimeContext builds a RuntimeContext for one pipeline execution.
func NewRuntimeContext(m *mapping.Mapping, pools PoolProvider) *RuntimeContext {
	return &RuntimeContext{
		Mapping: m,
		Pools:   pools,
		Reports: make(map[string]interface{}),
	}
}
