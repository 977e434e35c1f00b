package types

import (
	"regexp"
	"strings"
)

var defaultDictionary = buildDefaultDictionary()

func buildDefaultDictionary() map[string]UniversalType {
	merged := make(map[string]UniversalType, len(postgresDictionary)+len(mysqlDictionary))
	for k, v := range postgresDictionary {
		merged[k] = v
	}
	for k, v := range mysqlDictionary {
		merged[k] = v
	}
	return merged
}

var parenSuffix = regexp.MustCompile(`\(.*\)$`)

// Mapper exposes mapType and mapSchema over the ordered resolution
// procedure described in spec 4.1.
type Mapper struct{}

// NewMapper constructs a universal type mapper. It holds no state: the
// dictionaries and pattern table are package-level and compiled once.
func NewMapper() *Mapper {
	return &Mapper{}
}

func dictionaryFor(systemType string) (map[string]UniversalType, MappingSource) {
	switch strings.ToLower(strings.TrimSpace(systemType)) {
	case "postgresql", "postgres":
		return postgresDictionary, SourcePostgreSQL
	case "mysql":
		return mysqlDictionary, SourceMySQL
	default:
		return defaultDictionary, SourceDefault
	}
}

// MapType resolves a single native column type to a universal type,
// following the ordered procedure: normalize, exact match, stripped-exact
// match, special cases, pattern table, unknown.
func (m *Mapper) MapType(nativeType, systemType string, metadata ColumnMetadata) TypeMappingResult {
	dict, source := dictionaryFor(systemType)
	normalized := strings.ToLower(strings.TrimSpace(nativeType))

	result := TypeMappingResult{
		NativeType: nativeType,
		SystemType: systemType,
		Metadata:   metadata,
	}

	// Step 4 special case: postgresql array suffix. Checked before the
	// generic exact-match steps since "integer[]" would otherwise just
	// miss every dictionary entry.
	if source == SourcePostgreSQL && strings.HasSuffix(normalized, "[]") {
		result.UniversalType = Array
		result.MappingSource = source
		result.Confidence = 0.95
		return result
	}

	// Step 2: exact dictionary match.
	if ut, ok := dict[normalized]; ok {
		result.UniversalType = ut
		result.MappingSource = source
		result.Confidence = 0.95
		return result
	}

	// Step 3: strip a "(...)" parameter suffix and retry exact match.
	stripped := parenSuffix.ReplaceAllString(normalized, "")
	if stripped != normalized {
		if ut, ok := dict[stripped]; ok {
			result.UniversalType = ut
			result.MappingSource = source
			result.Confidence = 0.95
			return result
		}
	}

	// Step 5: ordered pattern table, first match wins.
	for _, entry := range patternTable {
		if entry.pattern.MatchString(normalized) {
			result.UniversalType = entry.result
			result.MappingSource = SourcePattern
			result.Confidence = 0.5
			return result
		}
	}

	// Step 6: no match.
	result.UniversalType = Unknown
	result.MappingSource = source
	result.Confidence = 0
	return result
}

// MapSchema recursively maps every table and column of a native schema,
// preserving column metadata alongside the resolved universal type.
func (m *Mapper) MapSchema(schema NativeSchema, systemType string) UniversalSchema {
	out := UniversalSchema{
		Name:   schema.Name,
		Tables: make([]UniversalTable, 0, len(schema.Tables)),
	}

	for _, table := range schema.Tables {
		ut := UniversalTable{
			Name:    table.Name,
			Columns: make([]UniversalColumn, 0, len(table.Columns)),
		}
		for _, col := range table.Columns {
			mapped := m.MapType(col.NativeType, systemType, col.Metadata)
			ut.Columns = append(ut.Columns, UniversalColumn{
				Name:            col.Name,
				UniversalType:   mapped.UniversalType,
				Metadata:        col.Metadata,
				IsPrimaryKey:    col.IsPrimaryKey,
				IsForeignKey:    col.IsForeignKey,
				IsUnique:        col.IsUnique,
				OrdinalPosition: col.OrdinalPosition,
				Comment:         col.Comment,
				MappingResult:   mapped,
			})
		}
		out.Tables = append(out.Tables, ut)
	}

	return out
}
