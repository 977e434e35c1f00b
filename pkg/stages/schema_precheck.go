package stages

import (
	"context"
	"fmt"

	"github.com/strata-data/mapengine/pkg/types"
)

// SchemaPreCheckStage implements the engine facade's "if sourceSchema
// present, run a pre-check stage" step: it checks the incoming record
// against the first table of the mapping's declared source schema,
// before any field-mapping rule runs. Like DataValidation, it never
// mutates input.
type SchemaPreCheckStage struct{}

func NewSchemaPreCheckStage() *SchemaPreCheckStage { return &SchemaPreCheckStage{} }

func (s *SchemaPreCheckStage) Name() string { return "SchemaPreCheck" }

func (s *SchemaPreCheckStage) Apply(ctx context.Context, input interface{}, rc *RuntimeContext) (interface{}, error) {
	record, ok := input.(map[string]interface{})
	if !ok {
		return input, newStageError(s.Name(), "input is not a record", false, ErrFieldTypeMismatch)
	}

	schema := rc.Mapping.SourceSchema
	if schema == nil || len(schema.Tables) == 0 {
		return input, nil
	}

	report := ValidationReport{Valid: true}
	table := schema.Tables[0]

	for _, column := range table.Columns {
		value, present := GetPath(record, column.Name)
		if !present {
			if !column.Metadata.Nullable {
				report.Valid = false
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", column.Name, ErrFieldRequired))
			}
			continue
		}
		if want := coarseType(column.UniversalType); want != "" && !matchesType(value, want) {
			report.Valid = false
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v (want %s)", column.Name, ErrFieldTypeMismatch, want))
		}
	}

	rc.Reports["schemaPreCheck"] = report

	if !report.Valid && rc.Mapping.StrictMode {
		return input, newStageError(s.Name(), "schema pre-check failed under strict mode", true, ErrFieldTypeMismatch)
	}

	return input, nil
}

// coarseType widens a universal column type to the small vocabulary
// matchesType already understands, since pre-check only needs to catch
// gross mismatches (a number column holding a string), not column-level
// precision/scale validation.
func coarseType(t types.UniversalType) string {
	switch t {
	case types.Integer, types.BigInt, types.SmallInt, types.Decimal, types.Numeric, types.Float, types.Double, types.Real:
		return "number"
	case types.Varchar, types.Char, types.Text, types.LongText, types.UUID:
		return "string"
	case types.Boolean:
		return "boolean"
	case types.Array:
		return "array"
	case types.JSON, types.JSONB:
		return "object"
	default:
		return ""
	}
}
