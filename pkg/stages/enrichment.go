package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v7/esapi"

	"github.com/strata-data/mapengine/pkg/mapping"
)

// DataEnrichmentStage applies the mapping's enrichment rules, adding
// derived fields computed from static values, a lookup table, or an
// Elasticsearch document lookup acquired from a named connection pool.
type DataEnrichmentStage struct{}

func NewDataEnrichmentStage() *DataEnrichmentStage { return &DataEnrichmentStage{} }

func (s *DataEnrichmentStage) Name() string { return "DataEnrichment" }

func (s *DataEnrichmentStage) Apply(ctx context.Context, input interface{}, rc *RuntimeContext) (interface{}, error) {
	record, ok := input.(map[string]interface{})
	if !ok {
		return input, newStageError(s.Name(), "input is not a record", false, ErrFieldTypeMismatch)
	}

	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = v
	}

	for _, rule := range rc.Mapping.EnrichmentRules {
		value, err := s.resolveEnrichment(ctx, rule, out, rc)
		if err != nil {
			return out, newStageError(s.Name(), fmt.Sprintf("enrichment %q: %v", rule.TargetField, err), true, err)
		}
		SetPath(out, rule.TargetField, value)
	}

	return out, nil
}

func (s *DataEnrichmentStage) resolveEnrichment(ctx context.Context, rule mapping.EnrichmentRule, record map[string]interface{}, rc *RuntimeContext) (interface{}, error) {
	switch rule.Source {
	case "static":
		return rule.Static, nil

	case "lookup_table":
		keyValue, _ := GetPath(record, rule.KeyField)
		table, _ := rule.Options["table"].(map[string]interface{})
		return table[fmt.Sprint(keyValue)], nil

	case "es_lookup":
		return s.esLookup(ctx, rule, record, rc)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, rule.Source)
	}
}

func (s *DataEnrichmentStage) esLookup(ctx context.Context, rule mapping.EnrichmentRule, record map[string]interface{}, rc *RuntimeContext) (interface{}, error) {
	if rc.Pools == nil {
		return nil, ErrLookupPoolMissing
	}

	keyValue, present := GetPath(record, rule.KeyField)
	if !present {
		return nil, nil
	}

	conn, err := rc.Pools.Acquire(ctx, rule.Pool)
	if err != nil {
		return nil, fmt.Errorf("acquire pool %q: %w", rule.Pool, err)
	}
	defer rc.Pools.Release(rule.Pool, conn)

	client, ok := conn.(esapi.Transport)
	if !ok {
		return nil, fmt.Errorf("pool %q did not yield an elasticsearch transport", rule.Pool)
	}

	req := esapi.GetRequest{
		Index:      rule.Index,
		DocumentID: fmt.Sprint(keyValue),
	}
	res, err := req.Do(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("es_lookup request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("es_lookup status %s", res.Status())
	}

	var document struct {
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&document); err != nil {
		return nil, fmt.Errorf("es_lookup decode: %w", err)
	}

	result := make(map[string]interface{})
	if err := json.Unmarshal(document.Source, &result); err != nil {
		return nil, fmt.Errorf("es_lookup decode source: %w", err)
	}

	if field := rule.Options["field"]; field != nil {
		if fieldName, ok := field.(string); ok {
			return result[fieldName], nil
		}
	}
	return result, nil
}
