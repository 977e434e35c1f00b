package schema

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-data/mapengine/pkg/config"
	"github.com/strata-data/mapengine/pkg/types"
)

type fakeAdapter struct {
	connectCalls int
	schema       types.NativeSchema
}

func (f *fakeAdapter) SystemType() string { return "fake" }

func (f *fakeAdapter) Connect(ctx context.Context) error {
	f.connectCalls++
	return nil
}

func (f *fakeAdapter) Disconnect(ctx context.Context) error { return nil }

func (f *fakeAdapter) DiscoverSchemas(ctx context.Context) (types.NativeSchema, error) {
	return f.schema, nil
}

func (f *fakeAdapter) GetSampleData(ctx context.Context, schemaName, table string, opts SampleOptions) ([]map[string]interface{}, error) {
	return []map[string]interface{}{{"id": 1}}, nil
}

func newTestService(t *testing.T) (*Service, *fakeAdapter) {
	t.Helper()
	adapter := &fakeAdapter{
		schema: types.NativeSchema{
			Name: "testdb",
			Tables: []types.Table{
				{Name: "customers", Columns: []types.Column{
					{Name: "id", NativeType: "integer", IsPrimaryKey: true},
				}},
			},
		},
	}

	svc := NewServiceWithCache(10, time.Hour)
	svc.RegisterAdapterFactory(config.SourceTypeMySQL, func(cfg config.SourceConfig) (Adapter, error) {
		return adapter, nil
	})
	svc.RegisterSystem("sys1", config.SourceConfig{Type: config.SourceTypeMySQL, Database: "testdb"})
	return svc, adapter
}

func TestService_Discover_CachesResult(t *testing.T) {
	svc, adapter := newTestService(t)

	result, err := svc.Discover(context.Background(), "sys1", DiscoveryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "testdb", result.NativeSchema.Name)
	assert.Equal(t, 1, adapter.connectCalls)

	_, err = svc.Discover(context.Background(), "sys1", DiscoveryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.connectCalls, "second call should be served from cache")
}

func TestService_Discover_ForceRefreshBypassesCache(t *testing.T) {
	svc, adapter := newTestService(t)

	_, err := svc.Discover(context.Background(), "sys1", DiscoveryOptions{})
	require.NoError(t, err)

	_, err = svc.Discover(context.Background(), "sys1", DiscoveryOptions{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.connectCalls)
}

func TestService_Discover_SystemNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Discover(context.Background(), "unknown", DiscoveryOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSystemNotFound)
}

func TestService_Discover_AdapterTypeUnknown(t *testing.T) {
	svc, _ := newTestService(t)
	svc.RegisterSystem("sys2", config.SourceConfig{Type: config.SourceTypePostgreSQL})
	_, err := svc.Discover(context.Background(), "sys2", DiscoveryOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAdapterTypeUnknown)
}

func TestService_UniversalSchemaIsResolved(t *testing.T) {
	svc, _ := newTestService(t)
	result, err := svc.Discover(context.Background(), "sys1", DiscoveryOptions{})
	require.NoError(t, err)
	require.Len(t, result.UniversalSchema.Tables, 1)
	assert.Equal(t, types.Integer, result.UniversalSchema.Tables[0].Columns[0].UniversalType)
}
