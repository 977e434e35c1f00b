// Package mapping defines the declarative mapping and rule data model that
// drives the transformation pipeline: a mapping pairs a source and target
// schema with an ordered list of rules describing how a source record
// becomes a target record.
package mapping

import (
	"fmt"

	"github.com/strata-data/mapengine/pkg/types"
)

// RuleType is the closed set of rule variants a mapping may declare.
type RuleType string

const (
	RuleDirect      RuleType = "direct"
	RuleTransform   RuleType = "transform"
	RuleConcat      RuleType = "concat"
	RuleSplit       RuleType = "split"
	RuleLookup      RuleType = "lookup"
	RuleFormula     RuleType = "formula"
	RuleConditional RuleType = "conditional"
	RuleAggregation RuleType = "aggregation"
)

// AggregationOp is the closed set of aggregation operations.
type AggregationOp string

const (
	AggSum   AggregationOp = "sum"
	AggAvg   AggregationOp = "avg"
	AggCount AggregationOp = "count"
	AggMin   AggregationOp = "min"
	AggMax   AggregationOp = "max"
)

// SplitSpec describes how a split rule divides a source field's value.
type SplitSpec struct {
	Delimiter string `json:"delimiter" yaml:"delimiter"`
	Index     *int   `json:"index,omitempty" yaml:"index,omitempty"` // nil means "all parts as an array"
}

// AggregationSpec is the payload specific to an aggregation rule.
type AggregationSpec struct {
	Source    string        `json:"source" yaml:"source"` // dotted path to the sequence to aggregate
	Operation AggregationOp `json:"operation" yaml:"operation"`
	Field     string        `json:"field,omitempty" yaml:"field,omitempty"` // required for everything but count
}

// Rule is one atomic transformation within a mapping. It is a tagged
// variant on Type: only the fields relevant to that variant are populated,
// and Validate exhaustively matches on Type rather than relying on zero
// values to infer intent.
type Rule struct {
	Name          string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Type          RuleType               `json:"type" yaml:"type"`
	TargetField   string                 `json:"targetField" yaml:"targetField"`
	SourceField   string                 `json:"sourceField,omitempty" yaml:"sourceField,omitempty"`
	SourceFields  []string               `json:"sourceFields,omitempty" yaml:"sourceFields,omitempty"` // concat
	Separator     string                 `json:"separator,omitempty" yaml:"separator,omitempty"`       // concat
	TransformType string                 `json:"transformType,omitempty" yaml:"transformType,omitempty"`
	KazaamSpec    string                 `json:"kazaamSpec,omitempty" yaml:"kazaamSpec,omitempty"` // required when transformType is "kazaam"
	Split         *SplitSpec             `json:"split,omitempty" yaml:"split,omitempty"`
	LookupTable   map[string]interface{} `json:"lookupTable,omitempty" yaml:"lookupTable,omitempty"`
	Formula       string                 `json:"formula,omitempty" yaml:"formula,omitempty"`
	Condition     string                 `json:"condition,omitempty" yaml:"condition,omitempty"`
	TrueValue     interface{}            `json:"trueValue,omitempty" yaml:"trueValue,omitempty"`
	FalseValue    interface{}            `json:"falseValue,omitempty" yaml:"falseValue,omitempty"`
	Aggregation   *AggregationSpec       `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
}

// Validate checks that a rule carries the fields required by its variant.
func (r Rule) Validate() error {
	if r.TargetField == "" {
		return fmt.Errorf("rule %q: %w", r.Name, ErrMissingTargetField)
	}

	switch r.Type {
	case RuleDirect:
		if r.SourceField == "" {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingSourceField)
		}
	case RuleTransform:
		if r.TransformType == "" {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingTransformType)
		}
		if r.TransformType == "kazaam" {
			if r.KazaamSpec == "" {
				return fmt.Errorf("rule %q: %w", r.Name, ErrMissingKazaamSpec)
			}
			break
		}
		if r.SourceField == "" {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingSourceField)
		}
	case RuleConcat:
		if len(r.SourceFields) == 0 {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingSourceFields)
		}
		if r.Separator == "" {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingSeparator)
		}
	case RuleSplit:
		if r.SourceField == "" {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingSourceField)
		}
		if r.Split == nil {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingSplitSpec)
		}
	case RuleLookup:
		if r.SourceField == "" {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingSourceField)
		}
		if len(r.LookupTable) == 0 {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingLookupTable)
		}
	case RuleFormula:
		if r.Formula == "" {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingFormula)
		}
	case RuleConditional:
		if r.Condition == "" {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingCondition)
		}
		if r.SourceField == "" {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingSourceField)
		}
	case RuleAggregation:
		if r.Aggregation == nil || r.Aggregation.Source == "" || r.Aggregation.Operation == "" {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingAggregation)
		}
		switch r.Aggregation.Operation {
		case AggSum, AggAvg, AggCount, AggMin, AggMax:
		default:
			return fmt.Errorf("rule %q: %w", r.Name, ErrInvalidAggregationOp)
		}
		if r.Aggregation.Operation != AggCount && r.Aggregation.Field == "" {
			return fmt.Errorf("rule %q: %w", r.Name, ErrMissingAggregation)
		}
	default:
		return fmt.Errorf("rule %q: %w: %s", r.Name, ErrUnknownRuleType, r.Type)
	}

	return nil
}

// ValidationRule configures a field-level or record-level validation
// assertion applied by the DataValidation stage.
type ValidationRule struct {
	Field    string      `json:"field" yaml:"field"`
	Required bool        `json:"required,omitempty" yaml:"required,omitempty"`
	Type     string      `json:"type,omitempty" yaml:"type,omitempty"` // expected native type, e.g. "string", "number"
	Pattern  string      `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Min      interface{} `json:"min,omitempty" yaml:"min,omitempty"`
	Max      interface{} `json:"max,omitempty" yaml:"max,omitempty"`
}

// QualityRule configures a single contribution to the DataQualityCheck score.
type QualityRule struct {
	Name   string  `json:"name" yaml:"name"`
	Field  string  `json:"field" yaml:"field"`
	Check  string  `json:"check" yaml:"check"` // not_null, not_empty, in_range, matches
	Weight float64 `json:"weight" yaml:"weight"`
	Param  string  `json:"param,omitempty" yaml:"param,omitempty"`
}

// EnrichmentRule configures a single DataEnrichment derived field.
type EnrichmentRule struct {
	TargetField string                 `json:"targetField" yaml:"targetField"`
	Source      string                 `json:"source" yaml:"source"` // "static", "es_lookup", "lookup_table"
	Static      interface{}            `json:"static,omitempty" yaml:"static,omitempty"`
	Pool        string                 `json:"pool,omitempty" yaml:"pool,omitempty"` // connection pool name for es_lookup
	Index       string                 `json:"index,omitempty" yaml:"index,omitempty"`
	KeyField    string                 `json:"keyField,omitempty" yaml:"keyField,omitempty"`
	Options     map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}

// AggregationConfig configures mapping-level aggregation independent of any
// single rule, consumed by the DataAggregation stage.
type AggregationConfig struct {
	GroupBy string            `json:"groupBy,omitempty" yaml:"groupBy,omitempty"`
	Specs   []AggregationSpec `json:"specs,omitempty" yaml:"specs,omitempty"`
}

// Mapping is an immutable, versioned transformation specification: a pair
// of schemas plus the ordered rule set and auxiliary configuration that
// together build a Pipeline.
type Mapping struct {
	ID               string            `json:"id" yaml:"id"`
	Version          string            `json:"version" yaml:"version"`
	// SourceSchema, when set, drives the SchemaPreCheck stage (spec
	// executeMapping step 2): its first table's columns are checked
	// against the incoming record before the transform phase runs.
	SourceSchema     *types.UniversalSchema `json:"sourceSchema,omitempty" yaml:"sourceSchema,omitempty"`
	TargetSchema     interface{}       `json:"targetSchema,omitempty" yaml:"targetSchema,omitempty"`
	Rules            []Rule            `json:"rules" yaml:"rules"`
	ValidationRules  []ValidationRule  `json:"validationRules,omitempty" yaml:"validationRules,omitempty"`
	QualityRules     []QualityRule     `json:"qualityRules,omitempty" yaml:"qualityRules,omitempty"`
	QualityThreshold float64           `json:"qualityThreshold,omitempty" yaml:"qualityThreshold,omitempty"`
	Preprocessing    []string          `json:"preprocessing,omitempty" yaml:"preprocessing,omitempty"`
	Postprocessing   []string          `json:"postprocessing,omitempty" yaml:"postprocessing,omitempty"`
	Aggregation      *AggregationConfig `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	EnrichmentRules  []EnrichmentRule  `json:"enrichmentRules,omitempty" yaml:"enrichmentRules,omitempty"`
	DefaultValues    map[string]interface{} `json:"defaultValues,omitempty" yaml:"defaultValues,omitempty"`
	StrictMode       bool              `json:"strictMode,omitempty" yaml:"strictMode,omitempty"`
	Active           bool              `json:"active" yaml:"active"`
	// KazaamEngine selects the Kazaam spec grammar used by this mapping's
	// "kazaam" transform rules: "" or "v4" for the current grammar,
	// "kazaam-v3" for specs written against the legacy v3 grammar.
	KazaamEngine     string            `json:"kazaamEngine,omitempty" yaml:"kazaamEngine,omitempty"`
}

// Key returns the pipeline-cache key for this mapping version.
func (m Mapping) Key() string {
	return fmt.Sprintf("%s:%s", m.ID, m.Version)
}

// Validate checks the mapping-level invariants from the data model: at
// least one rule, every rule individually valid, and every target field
// unique within the rule set.
func (m Mapping) Validate() error {
	if len(m.Rules) == 0 {
		return ErrMappingNoRules
	}

	seen := make(map[string]struct{}, len(m.Rules))
	for _, rule := range m.Rules {
		if err := rule.Validate(); err != nil {
			return err
		}
		if _, dup := seen[rule.TargetField]; dup {
			return fmt.Errorf("target field %q: %w", rule.TargetField, ErrDuplicateTargetField)
		}
		seen[rule.TargetField] = struct{}{}
	}

	return nil
}

// EffectiveQualityThreshold returns the configured quality threshold, or
// the spec default of 0.8 when unset.
func (m Mapping) EffectiveQualityThreshold() float64 {
	if m.QualityThreshold == 0 {
		return 0.8
	}
	return m.QualityThreshold
}
