// Package schema implements schema discovery (C2): adapter-backed
// introspection of source systems, a TTL/LRU discovery cache, and
// source/target schema comparison against the universal type mapper.
package schema

import (
	"context"
	"fmt"
	"time"

	"github.com/strata-data/mapengine/pkg/config"
	"github.com/strata-data/mapengine/pkg/types"
)

// Adapter is implemented by every source-system collaborator the
// discovery service can introspect. A concrete adapter owns its own
// connection lifecycle; the discovery service only calls through this
// contract.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SystemType() string
	DiscoverSchemas(ctx context.Context) (types.NativeSchema, error)
	GetSampleData(ctx context.Context, schemaName, table string, opts SampleOptions) ([]map[string]interface{}, error)
}

// StatisticsAdapter is an optional capability: adapters that can report
// table-level statistics implement it in addition to Adapter.
type StatisticsAdapter interface {
	GetTableStatistics(ctx context.Context, schemaName, table string) (TableStats, error)
}

// SampleOptions configures getSampleRows paging and ordering.
type SampleOptions struct {
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string // "asc" or "desc"
}

// TableStats is the outcome of getTableStats for a single table.
type TableStats struct {
	RowCount    int64     `json:"rowCount"`
	SizeBytes   int64     `json:"sizeBytes"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// DiscoveryResult is the outcome of discover(systemId, options): the
// native schema as reported by the adapter plus the universal schema
// resolved through the type mapper.
type DiscoveryResult struct {
	SystemID        string              `json:"systemId"`
	SystemType      string              `json:"systemType"`
	NativeSchema    types.NativeSchema  `json:"nativeSchema"`
	UniversalSchema types.UniversalSchema `json:"universalSchema"`
	DiscoveredAt    time.Time           `json:"discoveredAt"`
}

// DiscoveryOptions configures a single discover call.
type DiscoveryOptions struct {
	ForceRefresh bool
}

// MappingSuggestion is emitted by Compare for a compatible-but-different
// column type pairing.
type MappingSuggestion struct {
	Table      string `json:"table"`
	Column     string `json:"column"`
	SourceType string `json:"sourceType"`
	TargetType string `json:"targetType"`
	Suggestion string `json:"suggestion"`
}

// Comparison is the outcome of compare(source, target).
type Comparison struct {
	CompatibilityScore int                 `json:"compatibilityScore"`
	MissingColumns     []string            `json:"missingColumns,omitempty"`
	TypeMismatches     []string            `json:"typeMismatches,omitempty"`
	Warnings           []string            `json:"warnings,omitempty"`
	MappingSuggestions []MappingSuggestion `json:"mappingSuggestions,omitempty"`
}

// DiscoveryError mirrors the destination error shape used across the
// estuary package: a code, the failing operation, and an optional cause.
type DiscoveryError struct {
	Code      string
	Message   string
	Operation string
	SystemID  string
	Timestamp time.Time
	Cause     error
}

func (e *DiscoveryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s in %s operation on %s: %v", e.Code, e.Message, e.Operation, e.SystemID, e.Cause)
	}
	return fmt.Sprintf("[%s] %s in %s operation on %s", e.Code, e.Message, e.Operation, e.SystemID)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

const (
	ErrCodeSystemNotFound     = "SYSTEM_NOT_FOUND"
	ErrCodeAdapterTypeUnknown = "ADAPTER_TYPE_UNKNOWN"
	ErrCodeDiscoveryFailed    = "DISCOVERY_FAILED"
)

// AdapterFactory builds an Adapter from a source configuration. Each
// supported config.SourceType registers one factory with the service.
type AdapterFactory func(cfg config.SourceConfig) (Adapter, error)
