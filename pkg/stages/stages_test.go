package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-data/mapengine/pkg/mapping"
	"github.com/strata-data/mapengine/pkg/types"
)

func rc(m *mapping.Mapping) *RuntimeContext {
	return NewRuntimeContext(m, nil)
}

func TestDataValidationStage_RequiredMissing(t *testing.T) {
	stage := NewDataValidationStage()
	m := &mapping.Mapping{
		ValidationRules: []mapping.ValidationRule{{Field: "email", Required: true}},
	}

	out, err := stage.Apply(context.Background(), map[string]interface{}{"name": "ann"}, rc(m))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "ann"}, out)
}

func TestDataValidationStage_StrictModeFails(t *testing.T) {
	stage := NewDataValidationStage()
	m := &mapping.Mapping{
		StrictMode:      true,
		ValidationRules: []mapping.ValidationRule{{Field: "email", Required: true}},
	}

	_, err := stage.Apply(context.Background(), map[string]interface{}{}, rc(m))
	require.Error(t, err)
}

func TestDataSanitizationStage_TrimAndNullify(t *testing.T) {
	stage := NewDataSanitizationStage()
	m := &mapping.Mapping{Preprocessing: []string{"trim", "nullify_sentinels"}}

	out, err := stage.Apply(context.Background(), map[string]interface{}{
		"name": "  Ann  ",
		"note": "N/A",
	}, rc(m))
	require.NoError(t, err)

	record := out.(map[string]interface{})
	assert.Equal(t, "Ann", record["name"])
	assert.Nil(t, record["note"])
}

func TestFieldMappingStage_DirectAndConcat(t *testing.T) {
	stage := NewFieldMappingStage()
	m := &mapping.Mapping{
		Rules: []mapping.Rule{
			{Type: mapping.RuleDirect, SourceField: "id", TargetField: "customerId"},
			{Type: mapping.RuleConcat, SourceFields: []string{"first", "last"}, Separator: " ", TargetField: "fullName"},
		},
		DefaultValues: map[string]interface{}{"status": "active"},
	}

	out, err := stage.Apply(context.Background(), map[string]interface{}{
		"id": "c-1", "first": "Ann", "last": "Lee",
	}, rc(m))
	require.NoError(t, err)

	record := out.(map[string]interface{})
	assert.Equal(t, "c-1", record["customerId"])
	assert.Equal(t, "Ann Lee", record["fullName"])
	assert.Equal(t, "active", record["status"])
}

func TestFieldMappingStage_FormulaAndConditional(t *testing.T) {
	stage := NewFieldMappingStage()
	m := &mapping.Mapping{
		Rules: []mapping.Rule{
			{Type: mapping.RuleFormula, Formula: "unitPrice * quantity", TargetField: "total"},
			{Type: mapping.RuleConditional, SourceField: "quantity", Condition: "> 2", TrueValue: "bulk", FalseValue: "standard", TargetField: "tier"},
		},
	}

	out, err := stage.Apply(context.Background(), map[string]interface{}{
		"unitPrice": 50.0, "quantity": 3.0,
	}, rc(m))
	require.NoError(t, err)

	record := out.(map[string]interface{})
	assert.Equal(t, 150.0, record["total"])
	assert.Equal(t, "bulk", record["tier"])
}

func TestFieldMappingStage_KazaamWholeRecord(t *testing.T) {
	stage := NewFieldMappingStage()
	spec := `[{"operation": "shift", "spec": {"fullName": "name"}}]`
	m := &mapping.Mapping{
		Rules: []mapping.Rule{
			{Type: mapping.RuleTransform, TransformType: "kazaam", KazaamSpec: spec, TargetField: "renamed"},
		},
	}

	out, err := stage.Apply(context.Background(), map[string]interface{}{
		"name": "Ann Lee",
	}, rc(m))
	require.NoError(t, err)

	record := out.(map[string]interface{})
	renamed := record["renamed"].(map[string]interface{})
	assert.Equal(t, "Ann Lee", renamed["fullName"])
}

func TestFieldMappingStage_KazaamWithSourceField(t *testing.T) {
	stage := NewFieldMappingStage()
	spec := `[{"operation": "shift", "spec": {"fullName": "name"}}]`
	m := &mapping.Mapping{
		Rules: []mapping.Rule{
			{Type: mapping.RuleTransform, TransformType: "kazaam", KazaamSpec: spec, SourceField: "fullName", TargetField: "name"},
		},
	}

	out, err := stage.Apply(context.Background(), map[string]interface{}{
		"name": "Ann Lee",
	}, rc(m))
	require.NoError(t, err)

	record := out.(map[string]interface{})
	assert.Equal(t, "Ann Lee", record["name"])
}

func TestFieldMappingStage_StrictMissingSource(t *testing.T) {
	stage := NewFieldMappingStage()
	m := &mapping.Mapping{
		StrictMode: true,
		Rules:      []mapping.Rule{{Type: mapping.RuleDirect, SourceField: "missing", TargetField: "x"}},
	}

	_, err := stage.Apply(context.Background(), map[string]interface{}{}, rc(m))
	require.Error(t, err)
}

// TestFieldMappingStage_LenientMissingSourceOmitsKey covers spec's
// "absent means absent" property: a lenient rule whose source is
// missing must leave the target key out of the record, not set it to
// nil, so a DefaultValues entry for the same field can still fill it.
func TestFieldMappingStage_LenientMissingSourceOmitsKey(t *testing.T) {
	stage := NewFieldMappingStage()
	m := &mapping.Mapping{
		Rules:         []mapping.Rule{{Type: mapping.RuleDirect, SourceField: "missing", TargetField: "status"}},
		DefaultValues: map[string]interface{}{"status": "active"},
	}

	out, err := stage.Apply(context.Background(), map[string]interface{}{}, rc(m))
	require.NoError(t, err)

	record := out.(map[string]interface{})
	assert.Equal(t, "active", record["status"])
}

func TestDataAggregationStage_GroupedSum(t *testing.T) {
	stage := NewDataAggregationStage()
	m := &mapping.Mapping{
		Aggregation: &mapping.AggregationConfig{
			GroupBy: "region",
			Specs: []mapping.AggregationSpec{
				{Source: "orders", Operation: mapping.AggSum, Field: "amount"},
				{Source: "orders", Operation: mapping.AggCount},
			},
		},
	}

	record := map[string]interface{}{
		"orders": []map[string]interface{}{
			{"region": "west", "amount": 10.0},
			{"region": "west", "amount": 20.0},
			{"region": "east", "amount": 5.0},
		},
	}

	runtime := rc(m)
	out, err := stage.Apply(context.Background(), record, runtime)
	require.NoError(t, err)
	assert.Equal(t, record, out)

	report, ok := runtime.Reports["aggregation"].(AggregationReport)
	require.True(t, ok)
	assert.Equal(t, 30.0, report.Groups["west"]["sum_amount"])
	assert.Equal(t, 2.0, report.Groups["west"]["count"])
	assert.Equal(t, 5.0, report.Groups["east"]["sum_amount"])
	assert.Equal(t, 1.0, report.Groups["east"]["count"])
}

// TestFieldMappingStage_AggregationRule exercises the aggregation rule
// variant through the same record-scoped path real pipeline input takes:
// a nested sequence decoded as []interface{}, not a hand-built
// []map[string]interface{}.
func TestFieldMappingStage_AggregationRule(t *testing.T) {
	stage := NewFieldMappingStage()
	m := &mapping.Mapping{
		Rules: []mapping.Rule{
			{Type: mapping.RuleAggregation, TargetField: "totalOrderValue", Aggregation: &mapping.AggregationSpec{Source: "orders", Operation: mapping.AggSum, Field: "amount"}},
			{Type: mapping.RuleAggregation, TargetField: "orderCount", Aggregation: &mapping.AggregationSpec{Source: "orders", Operation: mapping.AggCount}},
		},
	}

	record := map[string]interface{}{
		"orders": []interface{}{
			map[string]interface{}{"amount": 10.0},
			map[string]interface{}{"amount": 25.5},
		},
	}

	out, err := stage.Apply(context.Background(), record, rc(m))
	require.NoError(t, err)
	result := out.(map[string]interface{})
	assert.Equal(t, 35.5, result["totalOrderValue"])
	assert.Equal(t, 2.0, result["orderCount"])
}

func TestFieldMappingStage_AggregationRule_MissingSourceLenient(t *testing.T) {
	stage := NewFieldMappingStage()
	m := &mapping.Mapping{
		Rules: []mapping.Rule{
			{Type: mapping.RuleAggregation, TargetField: "totalOrderValue", Aggregation: &mapping.AggregationSpec{Source: "orders", Operation: mapping.AggSum, Field: "amount"}},
		},
	}

	out, err := stage.Apply(context.Background(), map[string]interface{}{}, rc(m))
	require.NoError(t, err)
	result := out.(map[string]interface{})
	_, present := result["totalOrderValue"]
	assert.False(t, present)
}

func TestSchemaPreCheckStage_MissingRequiredColumnFailsStrict(t *testing.T) {
	stage := NewSchemaPreCheckStage()
	m := &mapping.Mapping{
		StrictMode: true,
		SourceSchema: &types.UniversalSchema{
			Tables: []types.UniversalTable{{
				Columns: []types.UniversalColumn{
					{Name: "email", UniversalType: types.Varchar},
				},
			}},
		},
	}

	_, err := stage.Apply(context.Background(), map[string]interface{}{}, rc(m))
	require.Error(t, err)
}

func TestSchemaPreCheckStage_TypeMismatchReportedLeniently(t *testing.T) {
	stage := NewSchemaPreCheckStage()
	m := &mapping.Mapping{
		SourceSchema: &types.UniversalSchema{
			Tables: []types.UniversalTable{{
				Columns: []types.UniversalColumn{
					{Name: "age", UniversalType: types.Integer},
				},
			}},
		},
	}

	runtime := rc(m)
	out, err := stage.Apply(context.Background(), map[string]interface{}{"age": "not-a-number"}, runtime)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"age": "not-a-number"}, out)

	report, ok := runtime.Reports["schemaPreCheck"].(ValidationReport)
	require.True(t, ok)
	assert.False(t, report.Valid)
}

func TestSchemaPreCheckStage_NilSchemaPassesThrough(t *testing.T) {
	stage := NewSchemaPreCheckStage()
	m := &mapping.Mapping{}

	out, err := stage.Apply(context.Background(), map[string]interface{}{"a": 1}, rc(m))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": 1}, out)
}

func TestDataQualityCheckStage_ScoreAndThreshold(t *testing.T) {
	stage := NewDataQualityCheckStage()
	m := &mapping.Mapping{
		StrictMode: true,
		QualityRules: []mapping.QualityRule{
			{Name: "name_present", Field: "name", Check: "not_null", Weight: 1},
			{Name: "email_present", Field: "email", Check: "not_null", Weight: 1},
		},
	}

	_, err := stage.Apply(context.Background(), map[string]interface{}{"name": "ann"}, rc(m))
	require.Error(t, err)
}

func TestDataEnrichmentStage_StaticAndLookupTable(t *testing.T) {
	stage := NewDataEnrichmentStage()
	m := &mapping.Mapping{
		EnrichmentRules: []mapping.EnrichmentRule{
			{TargetField: "region", Source: "static", Static: "us-east"},
			{
				TargetField: "tierLabel",
				Source:      "lookup_table",
				KeyField:    "tier",
				Options: map[string]interface{}{
					"table": map[string]interface{}{"1": "gold", "2": "silver"},
				},
			},
		},
	}

	out, err := stage.Apply(context.Background(), map[string]interface{}{"tier": "1"}, rc(m))
	require.NoError(t, err)

	record := out.(map[string]interface{})
	assert.Equal(t, "us-east", record["region"])
	assert.Equal(t, "gold", record["tierLabel"])
}
