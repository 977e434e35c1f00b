package stages

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/strata-data/mapengine/pkg/mapping"
)

// parseRangeParam parses an "in_range" quality rule's Param field,
// formatted as "min,max".
func parseRangeParam(param string) (min, max interface{}, err error) {
	parts := strings.SplitN(param, ",", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("expected \"min,max\"")
	}
	minVal, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, nil, err
	}
	maxVal, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, nil, err
	}
	return minVal, maxVal, nil
}

// DataQualityCheckStage runs the mapping's quality rules, producing a
// weighted score in [0,1]. Under strict mode a score below the
// mapping's effective threshold fails the stage.
type DataQualityCheckStage struct{}

func NewDataQualityCheckStage() *DataQualityCheckStage { return &DataQualityCheckStage{} }

func (s *DataQualityCheckStage) Name() string { return "DataQualityCheck" }

func (s *DataQualityCheckStage) Apply(ctx context.Context, input interface{}, rc *RuntimeContext) (interface{}, error) {
	record, ok := input.(map[string]interface{})
	if !ok {
		return input, newStageError(s.Name(), "input is not a record", false, ErrFieldTypeMismatch)
	}

	if len(rc.Mapping.QualityRules) == 0 {
		rc.Reports["quality"] = QualityReport{Score: 1, Threshold: rc.Mapping.EffectiveQualityThreshold(), Passed: true}
		return input, nil
	}

	breakdown := make(map[string]float64, len(rc.Mapping.QualityRules))
	var totalWeight, earnedWeight float64

	for _, rule := range rc.Mapping.QualityRules {
		weight := rule.Weight
		if weight == 0 {
			weight = 1
		}
		totalWeight += weight

		passed, err := evaluateQualityCheck(rule, record)
		if err != nil {
			return input, newStageError(s.Name(), err.Error(), true, err)
		}
		if passed {
			earnedWeight += weight
			breakdown[rule.Name] = 1
		} else {
			breakdown[rule.Name] = 0
		}
	}

	score := 1.0
	if totalWeight > 0 {
		score = earnedWeight / totalWeight
	}

	threshold := rc.Mapping.EffectiveQualityThreshold()
	report := QualityReport{Score: score, Threshold: threshold, Passed: score >= threshold, Breakdown: breakdown}
	rc.Reports["quality"] = report

	if !report.Passed && rc.Mapping.StrictMode {
		return input, newStageError(s.Name(), fmt.Sprintf("quality score %.2f below threshold %.2f", score, threshold), true, nil)
	}

	return input, nil
}

func evaluateQualityCheck(rule mapping.QualityRule, record map[string]interface{}) (bool, error) {
	value, present := GetPath(record, rule.Field)

	switch rule.Check {
	case "not_null":
		return present && value != nil, nil
	case "not_empty":
		if !present || value == nil {
			return false, nil
		}
		str, ok := value.(string)
		if !ok {
			return true, nil
		}
		return strings.TrimSpace(str) != "", nil
	case "in_range":
		if !present {
			return false, nil
		}
		min, max, err := parseRangeParam(rule.Param)
		if err != nil {
			return false, fmt.Errorf("%w: %s", ErrOutOfRange, rule.Param)
		}
		return withinRange(value, min, max), nil
	case "matches":
		if !present {
			return false, nil
		}
		str, ok := value.(string)
		if !ok {
			return false, nil
		}
		matched, err := regexp.MatchString(rule.Param, str)
		if err != nil {
			return false, fmt.Errorf("%w: %s", ErrPatternMismatch, rule.Param)
		}
		return matched, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownCheck, rule.Check)
	}
}
