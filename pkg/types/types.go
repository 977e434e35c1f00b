// Package types implements the universal type mapper (C1): it converts a
// native column type, as reported by a source system, into a confidence-
// scored member of a closed universal type set.
package types

// UniversalType is the closed set of target-independent column types the
// mapper can produce.
type UniversalType string

const (
	Integer   UniversalType = "integer"
	BigInt    UniversalType = "bigint"
	SmallInt  UniversalType = "smallint"
	Decimal   UniversalType = "decimal"
	Numeric   UniversalType = "numeric"
	Float     UniversalType = "float"
	Double    UniversalType = "double"
	Real      UniversalType = "real"
	Varchar   UniversalType = "varchar"
	Char      UniversalType = "char"
	Text      UniversalType = "text"
	LongText  UniversalType = "longtext"
	Date      UniversalType = "date"
	Time      UniversalType = "time"
	DateTime  UniversalType = "datetime"
	Timestamp UniversalType = "timestamp"
	Boolean   UniversalType = "boolean"
	Binary    UniversalType = "binary"
	VarBinary UniversalType = "varbinary"
	Blob      UniversalType = "blob"
	JSON      UniversalType = "json"
	JSONB     UniversalType = "jsonb"
	Array     UniversalType = "array"
	UUID      UniversalType = "uuid"
	Unknown   UniversalType = "unknown"
)

// MappingSource records which mechanism produced a TypeMappingResult.
type MappingSource string

const (
	SourcePostgreSQL MappingSource = "postgresql"
	SourceMySQL      MappingSource = "mysql"
	SourceDefault    MappingSource = "default"
	SourcePattern    MappingSource = "pattern"
)

// ColumnMetadata carries the auxiliary, source-reported facts about a
// column that ride alongside its resolved universal type.
type ColumnMetadata struct {
	Length       *int        `json:"length,omitempty"`
	Precision    *int        `json:"precision,omitempty"`
	Scale        *int        `json:"scale,omitempty"`
	Nullable     bool        `json:"nullable"`
	DefaultValue interface{} `json:"defaultValue,omitempty"`
}

// TypeMappingResult is the outcome of mapping one native type.
type TypeMappingResult struct {
	UniversalType UniversalType  `json:"universalType"`
	NativeType    string         `json:"nativeType"`
	SystemType    string         `json:"systemType"`
	Metadata      ColumnMetadata `json:"metadata"`
	MappingSource MappingSource  `json:"mappingSource"`
	Confidence    float64        `json:"confidence"`
}

// Column describes one column of a native schema as reported by a source
// system adapter, prior to universal type resolution.
type Column struct {
	Name          string
	NativeType    string
	Metadata      ColumnMetadata
	IsPrimaryKey  bool
	IsForeignKey  bool
	IsUnique      bool
	OrdinalPosition int
	Comment       string
}

// Table is a named collection of native columns.
type Table struct {
	Name    string
	Columns []Column
}

// NativeSchema is the input to MapSchema: a set of tables as discovered
// from a source system, prior to universal type resolution.
type NativeSchema struct {
	Name   string
	Tables []Table
}

// UniversalColumn is a Column whose type has been resolved to the
// universal type set, preserving source metadata.
type UniversalColumn struct {
	Name            string         `json:"name"`
	UniversalType   UniversalType  `json:"universalType"`
	Metadata        ColumnMetadata `json:"metadata"`
	IsPrimaryKey    bool           `json:"isPrimaryKey"`
	IsForeignKey    bool           `json:"isForeignKey"`
	IsUnique        bool           `json:"isUnique"`
	OrdinalPosition int            `json:"ordinalPosition"`
	Comment         string         `json:"comment,omitempty"`
	MappingResult   TypeMappingResult `json:"mappingResult"`
}

// UniversalTable is a Table whose columns have been resolved.
type UniversalTable struct {
	Name    string            `json:"name"`
	Columns []UniversalColumn `json:"columns"`
}

// UniversalSchema is a NativeSchema whose columns have all been resolved
// to the universal type set.
type UniversalSchema struct {
	Name   string           `json:"name"`
	Tables []UniversalTable `json:"tables"`
}
