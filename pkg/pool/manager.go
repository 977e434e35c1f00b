package pool

import (
	"context"
	"sync"
)

// Manager owns every named pool in the engine and satisfies
// pkg/stages.PoolProvider so enrichment lookups can acquire/release
// through it without pkg/stages importing this package.
type Manager struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

func NewManager() *Manager {
	return &Manager{pools: make(map[string]*Pool)}
}

// CreatePool registers a new named pool. Re-registering an existing
// name is an error; Manager has no method to remove or replace a
// registered pool.
func (m *Manager) CreatePool(name string, factory Factory, opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pools[name]; exists {
		return ErrPoolAlreadyExists
	}
	m.pools[name] = newPool(name, factory, opts)
	return nil
}

func (m *Manager) getPool(name string) (*Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

// Acquire satisfies pkg/stages.PoolProvider: checks out a connection
// from the named pool.
func (m *Manager) Acquire(ctx context.Context, poolName string) (interface{}, error) {
	p, err := m.getPool(poolName)
	if err != nil {
		return nil, err
	}
	return p.Acquire(ctx)
}

// Release satisfies pkg/stages.PoolProvider: returns a connection to
// the named pool. Unknown pool names are a no-op since the caller has
// no connection left to do anything else with.
func (m *Manager) Release(poolName string, conn interface{}) {
	p, err := m.getPool(poolName)
	if err != nil {
		return
	}
	p.Release(conn)
}

// ExecuteWithConnection acquires from the named pool, runs fn, and
// guarantees release.
func (m *Manager) ExecuteWithConnection(ctx context.Context, poolName string, fn func(conn interface{}) error) error {
	p, err := m.getPool(poolName)
	if err != nil {
		return err
	}
	return p.ExecuteWithConnection(ctx, fn)
}

// Metrics returns every pool's metrics snapshot, keyed by name.
func (m *Manager) Metrics() map[string]Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Metrics, len(m.pools))
	for name, p := range m.pools {
		out[name] = p.GetMetrics()
	}
	return out
}

// Shutdown drains every pool.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pools {
		p.Drain()
	}
}
