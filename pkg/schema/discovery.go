package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"github.com/strata-data/mapengine/pkg/config"
	"github.com/strata-data/mapengine/pkg/types"
)

const (
	defaultCacheTTL      = time.Hour
	defaultCacheCapacity = 1000
)

// Service is the discovery collaborator exposed to the engine facade: it
// wraps a set of registered adapter factories with a TTL/LRU cache keyed
// by systemId, and resolves native schemas to the universal type set.
type Service struct {
	mu        sync.RWMutex
	factories map[config.SourceType]AdapterFactory
	systems   map[string]config.SourceConfig
	cache     *lru.LRU[string, DiscoveryResult]
	mapper    *types.Mapper
}

// NewService constructs a discovery service with the default 1 hour TTL
// and 1000 entry LRU cache described in the discovery contract.
func NewService() *Service {
	return NewServiceWithCache(defaultCacheCapacity, defaultCacheTTL)
}

// NewServiceWithCache constructs a discovery service with an explicit
// cache capacity and TTL, for tests or alternate deployments.
func NewServiceWithCache(capacity int, ttl time.Duration) *Service {
	return &Service{
		factories: make(map[config.SourceType]AdapterFactory),
		systems:   make(map[string]config.SourceConfig),
		cache:     lru.NewLRU[string, DiscoveryResult](capacity, nil, ttl),
		mapper:    types.NewMapper(),
	}
}

// RegisterAdapterFactory binds an AdapterFactory to a source type, in the
// style of pkg/position's RegisterTracker factory registry.
func (s *Service) RegisterAdapterFactory(sourceType config.SourceType, factory AdapterFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[sourceType] = factory
}

// RegisterSystem associates a systemId with the configuration used to
// build its adapter on demand.
func (s *Service) RegisterSystem(systemID string, cfg config.SourceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systems[systemID] = cfg
}

func (s *Service) buildAdapter(systemID string) (Adapter, error) {
	s.mu.RLock()
	cfg, known := s.systems[systemID]
	s.mu.RUnlock()
	if !known {
		return nil, &DiscoveryError{Code: ErrCodeSystemNotFound, Message: "system not registered", Operation: "discover", SystemID: systemID, Timestamp: time.Now(), Cause: ErrSystemNotFound}
	}

	s.mu.RLock()
	factory, known := s.factories[cfg.Type]
	s.mu.RUnlock()
	if !known {
		return nil, &DiscoveryError{Code: ErrCodeAdapterTypeUnknown, Message: fmt.Sprintf("no adapter registered for type %q", cfg.Type), Operation: "discover", SystemID: systemID, Timestamp: time.Now(), Cause: ErrAdapterTypeUnknown}
	}

	return factory(cfg)
}

// Discover returns the cached DiscoveryResult for systemId, or runs the
// adapter's connect/discoverSchemas/disconnect cycle and populates the
// cache when absent, expired, or ForceRefresh is set.
func (s *Service) Discover(ctx context.Context, systemID string, opts DiscoveryOptions) (DiscoveryResult, error) {
	if !opts.ForceRefresh {
		if cached, ok := s.cache.Get(systemID); ok {
			return cached, nil
		}
	}

	adapter, err := s.buildAdapter(systemID)
	if err != nil {
		return DiscoveryResult{}, err
	}

	if err := adapter.Connect(ctx); err != nil {
		return DiscoveryResult{}, &DiscoveryError{Code: ErrCodeDiscoveryFailed, Message: "connect failed", Operation: "connect", SystemID: systemID, Timestamp: time.Now(), Cause: err}
	}
	defer func() {
		if err := adapter.Disconnect(ctx); err != nil {
			log.Warn().Err(err).Str("systemId", systemID).Msg("schema adapter disconnect failed")
		}
	}()

	native, err := adapter.DiscoverSchemas(ctx)
	if err != nil {
		return DiscoveryResult{}, &DiscoveryError{Code: ErrCodeDiscoveryFailed, Message: "discoverSchemas failed", Operation: "discoverSchemas", SystemID: systemID, Timestamp: time.Now(), Cause: err}
	}

	result := DiscoveryResult{
		SystemID:        systemID,
		SystemType:      adapter.SystemType(),
		NativeSchema:    native,
		UniversalSchema: s.mapper.MapSchema(native, adapter.SystemType()),
		DiscoveredAt:    time.Now(),
	}

	s.cache.Add(systemID, result)
	return result, nil
}

// GetSampleRows proxies to the adapter's getSampleData, bypassing the
// schema cache since sample data is not cached by contract.
func (s *Service) GetSampleRows(ctx context.Context, systemID, schemaName, table string, opts SampleOptions) ([]map[string]interface{}, error) {
	adapter, err := s.buildAdapter(systemID)
	if err != nil {
		return nil, err
	}
	if err := adapter.Connect(ctx); err != nil {
		return nil, &DiscoveryError{Code: ErrCodeDiscoveryFailed, Message: "connect failed", Operation: "connect", SystemID: systemID, Timestamp: time.Now(), Cause: err}
	}
	defer adapter.Disconnect(ctx)

	return adapter.GetSampleData(ctx, schemaName, table, opts)
}

// GetTableStats proxies to the adapter's getTableStatistics when the
// adapter implements StatisticsAdapter.
func (s *Service) GetTableStats(ctx context.Context, systemID, schemaName, table string) (TableStats, error) {
	adapter, err := s.buildAdapter(systemID)
	if err != nil {
		return TableStats{}, err
	}
	statsAdapter, ok := adapter.(StatisticsAdapter)
	if !ok {
		return TableStats{}, &DiscoveryError{Code: ErrCodeAdapterTypeUnknown, Message: "adapter does not support table statistics", Operation: "getTableStats", SystemID: systemID, Timestamp: time.Now()}
	}

	if err := adapter.Connect(ctx); err != nil {
		return TableStats{}, &DiscoveryError{Code: ErrCodeDiscoveryFailed, Message: "connect failed", Operation: "connect", SystemID: systemID, Timestamp: time.Now(), Cause: err}
	}
	defer adapter.Disconnect(ctx)

	return statsAdapter.GetTableStatistics(ctx, schemaName, table)
}

// InvalidateSystem drops the cached discovery result for a system,
// forcing the next Discover call to re-run the adapter cycle.
func (s *Service) InvalidateSystem(systemID string) {
	s.cache.Remove(systemID)
}
