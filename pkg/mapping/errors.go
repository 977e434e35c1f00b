package mapping

import "errors"

// Mapping validation error definitions.
var (
	ErrMappingNoRules        = errors.New("mapping has no rules")
	ErrDuplicateTargetField  = errors.New("duplicate target field in rule set")
	ErrUnknownRuleType       = errors.New("unknown rule type")
	ErrMissingTargetField    = errors.New("rule is missing a target field")
	ErrMissingSourceField    = errors.New("rule is missing a source field")
	ErrMissingSourceFields   = errors.New("concat rule requires at least one source field")
	ErrMissingSeparator      = errors.New("concat rule requires a separator")
	ErrMissingTransformType  = errors.New("transform rule requires a transform type")
	ErrMissingLookupTable    = errors.New("lookup rule requires a lookup table")
	ErrMissingFormula        = errors.New("formula rule requires a formula expression")
	ErrMissingCondition      = errors.New("conditional rule requires a condition")
	ErrMissingAggregation    = errors.New("aggregation rule requires an operation and source")
	ErrInvalidAggregationOp  = errors.New("invalid aggregation operation")
	ErrMissingSplitSpec      = errors.New("split rule requires a split specification")
	ErrMissingKazaamSpec     = errors.New("kazaam transform rule requires a kazaam spec")
	ErrMappingNilData        = errors.New("input data is nil")
)
