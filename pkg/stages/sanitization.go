package stages

import (
	"context"
	"strings"
	"time"
)

// DataSanitizationStage runs the configured sanitizers and normalizers
// named in the mapping's Preprocessing list. Every operation is
// idempotent: running the same sanitizer twice produces the same
// output as running it once.
type DataSanitizationStage struct{}

func NewDataSanitizationStage() *DataSanitizationStage { return &DataSanitizationStage{} }

func (s *DataSanitizationStage) Name() string { return "DataSanitization" }

var sentinelValues = map[string]struct{}{
	"":     {},
	"null": {},
	"NULL": {},
	"N/A":  {},
	"n/a":  {},
}

func (s *DataSanitizationStage) Apply(ctx context.Context, input interface{}, rc *RuntimeContext) (interface{}, error) {
	record, ok := input.(map[string]interface{})
	if !ok {
		return input, newStageError(s.Name(), "input is not a record", false, ErrFieldTypeMismatch)
	}

	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = v
	}

	for _, op := range rc.Mapping.Preprocessing {
		switch op {
		case "trim":
			applyToStrings(out, strings.TrimSpace)
		case "normalize_whitespace":
			applyToStrings(out, normalizeWhitespace)
		case "nullify_sentinels":
			applySentinelNullification(out)
		case "lowercase":
			applyToStrings(out, strings.ToLower)
		case "uppercase":
			applyToStrings(out, strings.ToUpper)
		case "parse_dates":
			applyDateNormalization(out)
		default:
			return out, newStageError(s.Name(), "unknown sanitizer: "+op, true, ErrUnknownSanitizer)
		}
	}

	return out, nil
}

func applyToStrings(record map[string]interface{}, f func(string) string) {
	for k, v := range record {
		if str, ok := v.(string); ok {
			record[k] = f(str)
		}
	}
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func applySentinelNullification(record map[string]interface{}) {
	for k, v := range record {
		if str, ok := v.(string); ok {
			if _, isSentinel := sentinelValues[str]; isSentinel {
				record[k] = nil
			}
		}
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
}

func applyDateNormalization(record map[string]interface{}) {
	for k, v := range record {
		str, ok := v.(string)
		if !ok {
			continue
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, str); err == nil {
				record[k] = parsed.UTC().Format(time.RFC3339)
				break
			}
		}
	}
}
