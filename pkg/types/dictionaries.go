package types

import "regexp"

// postgresDictionary maps a normalized PostgreSQL native type name to a
// universal type, matched at confidence 0.95.
var postgresDictionary = map[string]UniversalType{
	"integer":           Integer,
	"int":               Integer,
	"int4":              Integer,
	"bigint":             BigInt,
	"int8":              BigInt,
	"smallint":          SmallInt,
	"int2":              SmallInt,
	"numeric":           Numeric,
	"decimal":           Decimal,
	"real":              Real,
	"float4":            Real,
	"double precision":  Double,
	"float8":            Double,
	"character varying": Varchar,
	"varchar":           Varchar,
	"character":         Char,
	"char":              Char,
	"text":              Text,
	"date":              Date,
	"time":              Time,
	"timestamp":         Timestamp,
	"timestamptz":       Timestamp,
	"boolean":           Boolean,
	"bool":              Boolean,
	"bytea":             Binary,
	"json":              JSON,
	"jsonb":             JSONB,
	"uuid":              UUID,
}

var mysqlDictionary = map[string]UniversalType{
	"int":        Integer,
	"integer":    Integer,
	"bigint":     BigInt,
	"smallint":   SmallInt,
	"tinyint":    SmallInt,
	"decimal":    Decimal,
	"numeric":    Numeric,
	"float":      Float,
	"double":     Double,
	"real":       Real,
	"varchar":    Varchar,
	"char":       Char,
	"text":       Text,
	"tinytext":   Text,
	"mediumtext": LongText,
	"longtext":   LongText,
	"date":       Date,
	"time":       Time,
	"datetime":   DateTime,
	"timestamp":  Timestamp,
	"tinyint(1)": Boolean,
	"boolean":    Boolean,
	"bool":       Boolean,
	"blob":       Blob,
	"binary":     Binary,
	"varbinary":  VarBinary,
	"json":       JSON,
}

// patternEntry is one row of the ordered, compiled-once pattern table used
// when no exact dictionary match is found.
type patternEntry struct {
	pattern *regexp.Regexp
	result  UniversalType
}

// patternTable is evaluated in declared order; the first match wins. It is
// compiled once at package init, per design note "type mapping by regex
// patterns ... patterns are compiled once".
var patternTable = []patternEntry{
	{regexp.MustCompile(`varchar|char`), Varchar},
	{regexp.MustCompile(`text`), Text},
	{regexp.MustCompile(`bigint`), BigInt},
	{regexp.MustCompile(`int`), Integer},
	{regexp.MustCompile(`decimal|numeric`), Decimal},
	{regexp.MustCompile(`float|double|real`), Float},
	{regexp.MustCompile(`bool`), Boolean},
	{regexp.MustCompile(`timestamp|datetime`), Timestamp},
	{regexp.MustCompile(`date`), Date},
	{regexp.MustCompile(`time`), Time},
	{regexp.MustCompile(`json`), JSON},
	{regexp.MustCompile(`blob|binary`), Binary},
}
