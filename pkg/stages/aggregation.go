package stages

import (
	"context"
	"fmt"

	"github.com/strata-data/mapengine/pkg/mapping"
)

// DataAggregationStage computes sum/avg/count/min/max over sequences
// nested within the single record being mapped: each configured spec's
// Source is a dotted path to a sequence field on that record (e.g.
// "orders"), optionally grouped by a field within the sequence's own
// elements. Results land in rc.Reports, not the record itself.
type DataAggregationStage struct{}

func NewDataAggregationStage() *DataAggregationStage { return &DataAggregationStage{} }

func (s *DataAggregationStage) Name() string { return "DataAggregation" }

func (s *DataAggregationStage) Apply(ctx context.Context, input interface{}, rc *RuntimeContext) (interface{}, error) {
	record, ok := input.(map[string]interface{})
	if !ok {
		return input, newStageError(s.Name(), "input is not a record", false, ErrFieldTypeMismatch)
	}

	if rc.Mapping.Aggregation == nil || len(rc.Mapping.Aggregation.Specs) == 0 {
		return input, nil
	}

	report := AggregationReport{Groups: make(map[string]map[string]float64)}

	for _, spec := range rc.Mapping.Aggregation.Specs {
		records, present := sequenceAt(record, spec.Source)
		if !present {
			continue
		}

		groups := groupRecords(records, rc.Mapping.Aggregation.GroupBy)
		for groupKey, groupRecords := range groups {
			value, err := aggregate(groupRecords, spec)
			if err != nil {
				return input, newStageError(s.Name(), err.Error(), true, err)
			}
			fieldResults, ok := report.Groups[groupKey]
			if !ok {
				fieldResults = make(map[string]float64, len(rc.Mapping.Aggregation.Specs))
				report.Groups[groupKey] = fieldResults
			}
			fieldResults[resultKey(spec)] = value
		}
	}

	rc.Reports["aggregation"] = report
	return input, nil
}

// sequenceAt resolves a dotted path within record to a sequence of
// records, accepting either a pre-typed []map[string]interface{} or the
// []interface{} of maps a JSON/YAML decode actually produces.
func sequenceAt(record map[string]interface{}, path string) ([]map[string]interface{}, bool) {
	value, present := GetPath(record, path)
	if !present {
		return nil, false
	}

	switch seq := value.(type) {
	case []map[string]interface{}:
		return seq, true
	case []interface{}:
		records := make([]map[string]interface{}, 0, len(seq))
		for _, item := range seq {
			if m, ok := item.(map[string]interface{}); ok {
				records = append(records, m)
			}
		}
		return records, true
	default:
		return nil, false
	}
}

func resultKey(spec mapping.AggregationSpec) string {
	if spec.Field == "" {
		return string(spec.Operation)
	}
	return fmt.Sprintf("%s_%s", spec.Operation, spec.Field)
}

func groupRecords(records []map[string]interface{}, groupBy string) map[string][]map[string]interface{} {
	groups := make(map[string][]map[string]interface{})
	if groupBy == "" {
		groups["*"] = records
		return groups
	}
	for _, record := range records {
		key := "<nil>"
		if value, present := GetPath(record, groupBy); present {
			key = fmt.Sprint(value)
		}
		groups[key] = append(groups[key], record)
	}
	return groups
}

func aggregate(records []map[string]interface{}, spec mapping.AggregationSpec) (float64, error) {
	if spec.Operation == mapping.AggCount {
		return float64(len(records)), nil
	}

	var sum float64
	var min, max float64
	count := 0

	for _, record := range records {
		value, present := GetPath(record, spec.Field)
		if !present {
			continue
		}
		f, ok := toFloat(value)
		if !ok {
			continue
		}
		if count == 0 {
			min, max = f, f
		} else {
			if f < min {
				min = f
			}
			if f > max {
				max = f
			}
		}
		sum += f
		count++
	}

	switch spec.Operation {
	case mapping.AggSum:
		return sum, nil
	case mapping.AggAvg:
		if count == 0 {
			return 0, nil
		}
		return sum / float64(count), nil
	case mapping.AggMin:
		return min, nil
	case mapping.AggMax:
		return max, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownCheck, spec.Operation)
	}
}
