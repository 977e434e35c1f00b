package facade

import (
	"context"

	"github.com/strata-data/mapengine/pkg/execution"
	"github.com/strata-data/mapengine/pkg/mapping"
	"github.com/strata-data/mapengine/pkg/perf"
)

// Validate checks a mapping's own invariants and, when sampleData is
// supplied, dry-runs the resolved pipeline against it to surface stage
// errors before a caller commits to using the mapping for real
// executions. The dry run never touches the result cache or the
// circuit breaker/dead-letter queue, since it is diagnostic rather than
// a production execution.
func (e *Engine) Validate(ctx context.Context, m *mapping.Mapping, sampleData map[string]interface{}) (ValidationResult, error) {
	if m == nil {
		return ValidationResult{}, ErrMappingNil
	}

	complexity := perf.CalculateComplexity(m)
	resources := e.probe.Sample()
	rec := e.optimizer.OptimizeExecutionStrategy(1, complexity, resources)

	if err := m.Validate(); err != nil {
		return ValidationResult{Valid: false, Errors: []string{err.Error()}, Complexity: complexity, Resources: rec}, nil
	}

	if sampleData == nil {
		return ValidationResult{Valid: true, Complexity: complexity, Resources: rec}, nil
	}

	p := e.getOrBuildPipeline(m)
	execCtx := execution.NewContext("validate", 0, 0)
	execCtx.Start()

	if _, err := p.Execute(ctx, sampleData, execCtx); err != nil {
		return ValidationResult{Valid: false, Errors: []string{err.Error()}, Complexity: complexity, Resources: rec}, nil
	}

	return ValidationResult{Valid: true, Complexity: complexity, Resources: rec}, nil
}
