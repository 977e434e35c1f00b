package stages

import (
	"context"
	"fmt"
	"regexp"
)

// DataValidationStage checks input against the mapping's validation
// rules and never mutates its input: it produces a ValidationReport on
// RuntimeContext.Reports["validation"] and returns the input unchanged.
type DataValidationStage struct{}

func NewDataValidationStage() *DataValidationStage { return &DataValidationStage{} }

func (s *DataValidationStage) Name() string { return "DataValidation" }

func (s *DataValidationStage) Apply(ctx context.Context, input interface{}, rc *RuntimeContext) (interface{}, error) {
	record, ok := input.(map[string]interface{})
	if !ok {
		return input, newStageError(s.Name(), "input is not a record", false, ErrFieldTypeMismatch)
	}

	report := ValidationReport{Valid: true}

	for _, rule := range rc.Mapping.ValidationRules {
		value, present := GetPath(record, rule.Field)

		if rule.Required && !present {
			report.Valid = false
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rule.Field, ErrFieldRequired))
			continue
		}
		if !present {
			continue
		}

		if rule.Type != "" && !matchesType(value, rule.Type) {
			report.Valid = false
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v (want %s)", rule.Field, ErrFieldTypeMismatch, rule.Type))
			continue
		}

		if rule.Pattern != "" {
			str, isStr := value.(string)
			if !isStr {
				report.Valid = false
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rule.Field, ErrFieldTypeMismatch))
				continue
			}
			matched, err := regexp.MatchString(rule.Pattern, str)
			if err != nil || !matched {
				report.Valid = false
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rule.Field, ErrPatternMismatch))
				continue
			}
		}

		if rule.Min != nil || rule.Max != nil {
			if !withinRange(value, rule.Min, rule.Max) {
				report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %v", rule.Field, ErrOutOfRange))
			}
		}
	}

	rc.Reports["validation"] = report

	if !report.Valid && rc.Mapping.StrictMode {
		return input, newStageError(s.Name(), "validation failed under strict mode", true, ErrFieldTypeMismatch)
	}

	return input, nil
}

func matchesType(value interface{}, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	default:
		return true
	}
}

func withinRange(value, min, max interface{}) bool {
	v, ok := toFloat(value)
	if !ok {
		return true
	}
	if min != nil {
		if minVal, ok := toFloat(min); ok && v < minVal {
			return false
		}
	}
	if max != nil {
		if maxVal, ok := toFloat(max); ok && v > maxVal {
			return false
		}
	}
	return true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
