package stages

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/strata-data/mapengine/pkg/mapping"
)

// FieldMappingStage executes the mapping's ordered rule list against a
// single record, building the target record field by field.
type FieldMappingStage struct{}

// omitted marks a rule result that has no value to write: the rule's
// source was absent from the record in lenient mode. It is distinct
// from a rule legitimately producing nil, which is written as-is.
// Carrying it through applyRule's return value (rather than a second
// bool) lets every rule variant share the same signature.
type omittedMarker struct{}

var omitted interface{} = omittedMarker{}

func NewFieldMappingStage() *FieldMappingStage { return &FieldMappingStage{} }

func (s *FieldMappingStage) Name() string { return "FieldMapping" }

func (s *FieldMappingStage) Apply(ctx context.Context, input interface{}, rc *RuntimeContext) (interface{}, error) {
	record, ok := input.(map[string]interface{})
	if !ok {
		return input, newStageError(s.Name(), "input is not a record", false, ErrFieldTypeMismatch)
	}

	out := make(map[string]interface{})

	for _, rule := range rc.Mapping.Rules {
		value, err := s.applyRule(rule, record, rc.Mapping.StrictMode, rc.Mapping.KazaamEngine)
		if err != nil {
			return out, newStageError(s.Name(), fmt.Sprintf("rule %q: %v", rule.Name, err), !rc.Mapping.StrictMode, err)
		}
		if value == omitted {
			continue
		}
		SetPath(out, rule.TargetField, value)
	}

	for field, def := range rc.Mapping.DefaultValues {
		if _, present := GetPath(out, field); !present {
			SetPath(out, field, def)
		}
	}

	return out, nil
}

func (s *FieldMappingStage) applyRule(rule mapping.Rule, record map[string]interface{}, strict bool, kazaamEngine string) (interface{}, error) {
	switch rule.Type {
	case mapping.RuleDirect:
		return s.resolveSource(rule.SourceField, record, strict)

	case mapping.RuleTransform:
		if rule.TransformType == "kazaam" {
			transformed, err := kazaamTransform(rule.KazaamSpec, kazaamEngine, record)
			if err != nil {
				return nil, err
			}
			if rule.SourceField == "" {
				return transformed, nil
			}
			value, present := GetPath(transformed, rule.SourceField)
			if !present {
				return omitted, nil
			}
			return value, nil
		}
		value, err := s.resolveSource(rule.SourceField, record, strict)
		if err != nil {
			return nil, err
		}
		if value == omitted {
			return omitted, nil
		}
		return applyTransform(rule.TransformType, value)

	case mapping.RuleConcat:
		parts := make([]string, 0, len(rule.SourceFields))
		for _, field := range rule.SourceFields {
			value, err := s.resolveSource(field, record, strict)
			if err != nil {
				return nil, err
			}
			if value == omitted {
				value = nil
			}
			parts = append(parts, fmt.Sprint(value))
		}
		return strings.Join(parts, rule.Separator), nil

	case mapping.RuleSplit:
		value, err := s.resolveSource(rule.SourceField, record, strict)
		if err != nil {
			return nil, err
		}
		if value == omitted {
			value = nil
		}
		str, _ := value.(string)
		parts := strings.Split(str, rule.Split.Delimiter)
		if rule.Split.Index == nil {
			result := make([]interface{}, len(parts))
			for i, p := range parts {
				result[i] = p
			}
			return result, nil
		}
		idx := *rule.Split.Index
		if idx < 0 || idx >= len(parts) {
			return "", nil
		}
		return parts[idx], nil

	case mapping.RuleLookup:
		value, err := s.resolveSource(rule.SourceField, record, strict)
		if err != nil {
			return nil, err
		}
		if value == omitted {
			value = nil
		}
		key := fmt.Sprint(value)
		if mapped, ok := rule.LookupTable[key]; ok {
			return mapped, nil
		}
		return nil, nil

	case mapping.RuleFormula:
		return evaluateFormula(rule.Formula, record)

	case mapping.RuleConditional:
		value, err := s.resolveSource(rule.SourceField, record, strict)
		if err != nil {
			return nil, err
		}
		if value == omitted {
			value = nil
		}
		if evaluateCondition(rule.Condition, value) {
			return rule.TrueValue, nil
		}
		return rule.FalseValue, nil

	case mapping.RuleAggregation:
		records, present := sequenceAt(record, rule.Aggregation.Source)
		if !present {
			if strict {
				return nil, fmt.Errorf("%s: %w", rule.Aggregation.Source, ErrStrictFieldMissing)
			}
			return omitted, nil
		}
		return aggregate(records, *rule.Aggregation)

	default:
		return nil, fmt.Errorf("unhandled rule type %q", rule.Type)
	}
}

// resolveSource looks up path in record. A present-but-nil value is
// returned as nil, same as any other value; an absent path returns the
// omitted sentinel in lenient mode, or ErrStrictFieldMissing in strict
// mode — never a bare nil, so callers can't confuse "absent" with "null".
func (s *FieldMappingStage) resolveSource(path string, record map[string]interface{}, strict bool) (interface{}, error) {
	value, present := GetPath(record, path)
	if !present {
		if strict {
			return nil, fmt.Errorf("%s: %w", path, ErrStrictFieldMissing)
		}
		return omitted, nil
	}
	return value, nil
}

func applyTransform(transformType string, value interface{}) (interface{}, error) {
	switch transformType {
	case "uppercase":
		str, _ := value.(string)
		return strings.ToUpper(str), nil
	case "lowercase":
		str, _ := value.(string)
		return strings.ToLower(str), nil
	case "trim":
		str, _ := value.(string)
		return strings.TrimSpace(str), nil
	case "to_string":
		return fmt.Sprint(value), nil
	case "to_number":
		switch v := value.(type) {
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("to_number: %w", err)
			}
			return f, nil
		default:
			return toFloatOrZero(v), nil
		}
	default:
		return value, nil
	}
}

func toFloatOrZero(v interface{}) float64 {
	f, _ := toFloat(v)
	return f
}
