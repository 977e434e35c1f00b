// Package pool implements the connection pool manager (C9): named
// pools of reusable resources acquired and released against a
// configurable factory, with idle expiry, optional periodic
// validation, and guaranteed release across all exit paths.
package pool

import (
	"context"
	"sync"
	"time"
)

// Factory creates, validates, and destroys the connections a pool
// manages. Validate is optional; a nil Validate means every idle
// connection is assumed healthy.
type Factory struct {
	Create  func(ctx context.Context) (interface{}, error)
	Destroy func(conn interface{})
	Validate func(conn interface{}) bool
}

// Options configures one pool's sizing and lifetimes. Mirrors
// pkg/estuary's ConnectionPoolConfig field set (min/max connections,
// idle lifetime, acquire timeout) generalized from an
// estuary-destination-specific shape to any pooled resource.
type Options struct {
	Min              int
	Max              int
	AcquireTimeout   time.Duration
	IdleTimeout      time.Duration
	HealthCheck      time.Duration // 0 disables periodic validation
}

func (o *Options) setDefaults() {
	if o.Max <= 0 {
		o.Max = 10
	}
	if o.Min < 0 {
		o.Min = 0
	}
	if o.Min > o.Max {
		o.Min = o.Max
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = 5 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
}

type idleConn struct {
	conn    interface{}
	idledAt time.Time
}

// Pool is one named resource pool. Acquire/Release treat the tokens
// channel as a counting semaphore bounding live connections at Max,
// and the idle slice as the set of connections available for reuse;
// Go channels already deliver FIFO ordering to blocked acquirers.
type Pool struct {
	name    string
	factory Factory
	opts    Options
	metrics Metrics

	mu       sync.Mutex
	idle     []idleConn
	tokens   chan struct{}
	live     int
	closed   bool
	stopHC   chan struct{}
}

func newPool(name string, factory Factory, opts Options) *Pool {
	opts.setDefaults()
	p := &Pool{
		name:    name,
		factory: factory,
		opts:    opts,
		tokens:  make(chan struct{}, opts.Max),
		stopHC:  make(chan struct{}),
	}
	for i := 0; i < opts.Max; i++ {
		p.tokens <- struct{}{}
	}
	if opts.HealthCheck > 0 && factory.Validate != nil {
		go p.runHealthCheck()
	}
	return p
}

// Acquire checks out a connection, reusing an idle one when available
// and creating a fresh one otherwise, blocking up to AcquireTimeout
// for a free slot.
func (p *Pool) Acquire(ctx context.Context) (interface{}, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if len(p.idle) > 0 {
		last := len(p.idle) - 1
		ic := p.idle[last]
		p.idle = p.idle[:last]
		p.mu.Unlock()
		p.metrics.incAcquired()
		return ic.conn, nil
	}
	p.mu.Unlock()

	timeoutCtx, cancel := context.WithTimeout(ctx, p.opts.AcquireTimeout)
	defer cancel()

	select {
	case <-p.tokens:
		conn, err := p.factory.Create(timeoutCtx)
		if err != nil {
			p.tokens <- struct{}{}
			p.metrics.incErrors()
			return nil, err
		}
		p.metrics.incCreated()
		p.metrics.incAcquired()
		p.mu.Lock()
		p.live++
		p.mu.Unlock()
		return conn, nil
	case <-timeoutCtx.Done():
		p.metrics.incTimeouts()
		return nil, ErrAcquireTimeout
	}
}

// Release returns a connection to the idle set for reuse.
func (p *Pool) Release(conn interface{}) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.destroy(conn)
		return
	}
	p.idle = append(p.idle, idleConn{conn: conn, idledAt: time.Now()})
	p.mu.Unlock()
	p.metrics.incReleased()
	p.reapIdle()
}

// ExecuteWithConnection acquires a connection, runs fn, and guarantees
// release on every exit path — success, error, or context
// cancellation.
func (p *Pool) ExecuteWithConnection(ctx context.Context, fn func(conn interface{}) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(conn)
}

// reapIdle destroys idle connections that have exceeded IdleTimeout.
func (p *Pool) reapIdle() {
	p.mu.Lock()
	cutoff := time.Now().Add(-p.opts.IdleTimeout)
	kept := p.idle[:0]
	var expired []interface{}
	for _, ic := range p.idle {
		if ic.idledAt.Before(cutoff) {
			expired = append(expired, ic.conn)
			continue
		}
		kept = append(kept, ic)
	}
	p.idle = kept
	p.mu.Unlock()

	for _, conn := range expired {
		p.destroy(conn)
		p.tokens <- struct{}{}
	}
}

func (p *Pool) destroy(conn interface{}) {
	if p.factory.Destroy != nil {
		p.factory.Destroy(conn)
	}
	p.metrics.incDestroyed()
	p.mu.Lock()
	p.live--
	p.mu.Unlock()
}

func (p *Pool) runHealthCheck() {
	ticker := time.NewTicker(p.opts.HealthCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.validateIdle()
		case <-p.stopHC:
			return
		}
	}
}

func (p *Pool) validateIdle() {
	p.mu.Lock()
	candidates := append([]idleConn(nil), p.idle...)
	p.mu.Unlock()

	var unhealthy []interface{}
	for _, ic := range candidates {
		if !p.factory.Validate(ic.conn) {
			unhealthy = append(unhealthy, ic.conn)
		}
	}
	if len(unhealthy) == 0 {
		return
	}

	p.mu.Lock()
	kept := p.idle[:0]
	for _, ic := range p.idle {
		bad := false
		for _, u := range unhealthy {
			if u == ic.conn {
				bad = true
				break
			}
		}
		if !bad {
			kept = append(kept, ic)
		}
	}
	p.idle = kept
	p.mu.Unlock()

	for _, conn := range unhealthy {
		p.destroy(conn)
		p.tokens <- struct{}{}
	}
}

// GetMetrics returns a snapshot of this pool's counters.
func (p *Pool) GetMetrics() Metrics {
	return p.metrics.Snapshot()
}

// Drain destroys every idle connection and stops the health check
// loop. Connections currently checked out are destroyed as they are
// released after Drain.
func (p *Pool) Drain() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	close(p.stopHC)
	for _, ic := range idle {
		p.destroy(ic.conn)
	}
}
