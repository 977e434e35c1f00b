package schema

import (
	"fmt"

	"github.com/strata-data/mapengine/pkg/types"
)

// compatibilityFamilies groups universal types the mapper considers
// interchangeable enough to warrant a mapping suggestion rather than a
// hard incompatibility.
var compatibilityFamilies = [][]types.UniversalType{
	{types.Integer, types.BigInt, types.SmallInt, types.Decimal, types.Numeric},
	{types.Float, types.Double, types.Real},
	{types.Varchar, types.Char, types.Text, types.LongText},
	{types.Date, types.Time, types.DateTime, types.Timestamp},
	{types.JSON, types.JSONB},
	{types.Binary, types.VarBinary, types.Blob},
}

func sameFamily(a, b types.UniversalType) bool {
	for _, family := range compatibilityFamilies {
		inA, inB := false, false
		for _, t := range family {
			if t == a {
				inA = true
			}
			if t == b {
				inB = true
			}
		}
		if inA && inB {
			return true
		}
	}
	return false
}

// Compare evaluates a target universal schema against a source universal
// schema, following the scoring rules from the discovery contract:
// starting at 100, -5 per missing target column, -10 per incompatible
// type mismatch, warnings for nullability tightening, and suggestions
// for compatible-but-different types.
func Compare(source, target types.UniversalSchema) Comparison {
	score := 100
	result := Comparison{}

	targetTables := make(map[string]types.UniversalTable, len(target.Tables))
	for _, t := range target.Tables {
		targetTables[t.Name] = t
	}

	for _, sourceTable := range source.Tables {
		targetTable, ok := targetTables[sourceTable.Name]
		if !ok {
			score -= 5
			result.MissingColumns = append(result.MissingColumns, fmt.Sprintf("%s.*", sourceTable.Name))
			continue
		}

		targetColumns := make(map[string]types.UniversalColumn, len(targetTable.Columns))
		for _, c := range targetTable.Columns {
			targetColumns[c.Name] = c
		}

		for _, sourceColumn := range sourceTable.Columns {
			qualified := fmt.Sprintf("%s.%s", sourceTable.Name, sourceColumn.Name)
			targetColumn, ok := targetColumns[sourceColumn.Name]
			if !ok {
				score -= 5
				result.MissingColumns = append(result.MissingColumns, qualified)
				continue
			}

			if sourceColumn.UniversalType != targetColumn.UniversalType {
				if sameFamily(sourceColumn.UniversalType, targetColumn.UniversalType) {
					result.MappingSuggestions = append(result.MappingSuggestions, MappingSuggestion{
						Table:      sourceTable.Name,
						Column:     sourceColumn.Name,
						SourceType: string(sourceColumn.UniversalType),
						TargetType: string(targetColumn.UniversalType),
						Suggestion: fmt.Sprintf("convert %s to %s", sourceColumn.UniversalType, targetColumn.UniversalType),
					})
				} else {
					score -= 10
					result.TypeMismatches = append(result.TypeMismatches, fmt.Sprintf("%s: %s != %s", qualified, sourceColumn.UniversalType, targetColumn.UniversalType))
				}
			}

			if !sourceColumn.Metadata.Nullable && targetColumn.Metadata.Nullable {
				// target loosens nullability; not a compatibility concern.
				continue
			}
			if sourceColumn.Metadata.Nullable && !targetColumn.Metadata.Nullable {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s: nullability tightened (source nullable, target not null)", qualified))
			}
		}
	}

	if score < 0 {
		score = 0
	}
	result.CompatibilityScore = score
	return result
}
