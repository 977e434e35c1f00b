package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/strata-data/mapengine/pkg/config"
	"github.com/strata-data/mapengine/pkg/types"
)

func decodeCosmosItem(raw []byte) (map[string]interface{}, error) {
	doc := make(map[string]interface{})
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// CosmosAdapter discovers schemas from an Azure Cosmos DB container,
// following the managed-identity connection pattern the change feed
// stream provider uses.
type CosmosAdapter struct {
	cfg       config.SourceConfig
	client    *azcosmos.Client
	container *azcosmos.ContainerClient
}

// NewCosmosAdapter builds a CosmosAdapter from a source configuration.
// cfg.Database and cfg.Options["container"] select the target database
// and container; cfg.URI is the account endpoint.
func NewCosmosAdapter(cfg config.SourceConfig) (Adapter, error) {
	return &CosmosAdapter{cfg: cfg}, nil
}

func (a *CosmosAdapter) SystemType() string { return "cosmosdb" }

func (a *CosmosAdapter) Connect(ctx context.Context) error {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return fmt.Errorf("cosmos adapter credential: %w", err)
	}

	client, err := azcosmos.NewClient(a.cfg.URI, cred, nil)
	if err != nil {
		return fmt.Errorf("cosmos adapter client: %w", err)
	}

	containerName, _ := a.cfg.Options["container"].(string)
	container, err := client.NewContainer(a.cfg.Database, containerName)
	if err != nil {
		return fmt.Errorf("cosmos adapter container: %w", err)
	}

	a.client = client
	a.container = container
	return nil
}

func (a *CosmosAdapter) Disconnect(ctx context.Context) error {
	return nil
}

// DiscoverSchemas infers a single-table schema by sampling a page of
// items and unioning their top-level JSON field types, since Cosmos
// containers carry no declared schema.
func (a *CosmosAdapter) DiscoverSchemas(ctx context.Context) (types.NativeSchema, error) {
	if a.container == nil {
		return types.NativeSchema{}, ErrAdapterNotConnected
	}

	containerName, _ := a.cfg.Options["container"].(string)
	fieldTypes := make(map[string]string)

	pager := a.container.NewQueryItemsPager("SELECT * FROM c OFFSET 0 LIMIT 50", azcosmos.NewPartitionKey(), nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return types.NativeSchema{}, fmt.Errorf("cosmos adapter query items: %w", err)
		}
		for _, item := range page.Items {
			doc, err := decodeCosmosItem(item)
			if err != nil {
				return types.NativeSchema{}, fmt.Errorf("cosmos adapter decode item: %w", err)
			}
			for field, value := range doc {
				if _, seen := fieldTypes[field]; !seen {
					fieldTypes[field] = cosmosFieldType(value)
				}
			}
		}
	}

	table := types.Table{Name: containerName}
	i := 1
	for name, nativeType := range fieldTypes {
		table.Columns = append(table.Columns, types.Column{
			Name:            name,
			NativeType:      nativeType,
			IsPrimaryKey:    name == "id",
			OrdinalPosition: i,
			Metadata:        types.ColumnMetadata{Nullable: true},
		})
		i++
	}

	return types.NativeSchema{
		Name:   a.cfg.Database,
		Tables: []types.Table{table},
	}, nil
}

func (a *CosmosAdapter) GetSampleData(ctx context.Context, schemaName, table string, opts SampleOptions) ([]map[string]interface{}, error) {
	if a.container == nil {
		return nil, ErrAdapterNotConnected
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("SELECT * FROM c OFFSET %d LIMIT %d", opts.Offset, limit)

	var results []map[string]interface{}
	pager := a.container.NewQueryItemsPager(query, azcosmos.NewPartitionKey(), nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("cosmos adapter sample rows: %w", err)
		}
		for _, item := range page.Items {
			doc, err := decodeCosmosItem(item)
			if err != nil {
				return nil, fmt.Errorf("cosmos adapter decode sample row: %w", err)
			}
			results = append(results, doc)
		}
	}
	return results, nil
}

func cosmosFieldType(value interface{}) string {
	switch value.(type) {
	case float64:
		return "double"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]interface{}:
		return "json"
	case []interface{}:
		return "array"
	default:
		return "string"
	}
}
