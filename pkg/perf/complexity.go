// Package perf implements the performance optimizer (C8): mapping
// complexity scoring, system resource sampling, execution-strategy
// recommendation, and an adaptive result cache with optional value
// compression.
package perf

import "github.com/strata-data/mapengine/pkg/mapping"

// complexity factor weights, each capped individually before summing
// so no single factor can saturate the [0,1] score on its own.
const (
	weightRuleCount       = 0.3
	weightTransformCount  = 0.25
	weightValidationCount = 0.15
	weightAggregation     = 0.15
	weightQualityRules    = 0.15

	ruleCountCap       = 20
	transformCountCap  = 10
	validationCountCap = 10
	qualityRuleCountCap = 10
)

// CalculateComplexity scores a mapping's execution complexity on
// [0,1] from its rule count, transform-rule count, validation-rule
// count, aggregation presence, and quality-rule count.
func CalculateComplexity(m *mapping.Mapping) float64 {
	if m == nil {
		return 0
	}

	transformCount := 0
	for _, rule := range m.Rules {
		if rule.Type == mapping.RuleTransform || rule.Type == mapping.RuleFormula || rule.Type == mapping.RuleConditional {
			transformCount++
		}
	}

	score := capped(len(m.Rules), ruleCountCap)*weightRuleCount +
		capped(transformCount, transformCountCap)*weightTransformCount +
		capped(len(m.ValidationRules), validationCountCap)*weightValidationCount +
		capped(len(m.QualityRules), qualityRuleCountCap)*weightQualityRules

	if m.Aggregation != nil {
		score += weightAggregation
	}

	if score > 1 {
		score = 1
	}
	return score
}

func capped(count, cap int) float64 {
	if cap <= 0 {
		return 0
	}
	if count > cap {
		count = cap
	}
	return float64(count) / float64(cap)
}
