package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct{ id int64 }

func countingFactory() (Factory, *int64, *int64) {
	var created, destroyed int64
	var next int64
	factory := Factory{
		Create: func(ctx context.Context) (interface{}, error) {
			id := atomic.AddInt64(&next, 1)
			atomic.AddInt64(&created, 1)
			return &fakeConn{id: id}, nil
		},
		Destroy: func(conn interface{}) {
			atomic.AddInt64(&destroyed, 1)
		},
	}
	return factory, &created, &destroyed
}

func TestPool_AcquireCreatesUpToMax(t *testing.T) {
	factory, created, _ := countingFactory()
	p := newPool("p1", factory, Options{Max: 2, AcquireTimeout: 50 * time.Millisecond})

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
	assert.Equal(t, int64(2), atomic.LoadInt64(created))
}

func TestPool_AcquireTimesOutWhenExhausted(t *testing.T) {
	factory, _, _ := countingFactory()
	p := newPool("p2", factory, Options{Max: 1, AcquireTimeout: 20 * time.Millisecond})

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.Equal(t, int64(1), p.GetMetrics().Timeouts)
}

func TestPool_ReleaseReusesConnection(t *testing.T) {
	factory, created, _ := countingFactory()
	p := newPool("p3", factory, Options{Max: 1, AcquireTimeout: 20 * time.Millisecond})

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(conn)

	reused, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, conn, reused)
	assert.Equal(t, int64(1), atomic.LoadInt64(created))
}

func TestPool_ExecuteWithConnectionAlwaysReleases(t *testing.T) {
	factory, _, _ := countingFactory()
	p := newPool("p4", factory, Options{Max: 1, AcquireTimeout: 20 * time.Millisecond})

	err := p.ExecuteWithConnection(context.Background(), func(conn interface{}) error {
		return errors.New("boom")
	})
	require.Error(t, err)

	_, acquireErr := p.Acquire(context.Background())
	require.NoError(t, acquireErr) // the connection was released despite the error
}

func TestPool_IdleExpiryDestroysConnection(t *testing.T) {
	factory, _, destroyed := countingFactory()
	p := newPool("p5", factory, Options{Max: 1, AcquireTimeout: 20 * time.Millisecond, IdleTimeout: time.Millisecond})

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(conn)

	time.Sleep(5 * time.Millisecond)
	p.reapIdle()

	assert.Equal(t, int64(1), atomic.LoadInt64(destroyed))
}

func TestPool_DrainDestroysIdleConnections(t *testing.T) {
	factory, _, destroyed := countingFactory()
	p := newPool("p6", factory, Options{Max: 2, AcquireTimeout: 20 * time.Millisecond})

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(conn)

	p.Drain()
	assert.Equal(t, int64(1), atomic.LoadInt64(destroyed))

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestManager_CreateAcquireReleaseShutdown(t *testing.T) {
	factory, _, destroyed := countingFactory()
	m := NewManager()
	require.NoError(t, m.CreatePool("db", factory, Options{Max: 1, AcquireTimeout: 20 * time.Millisecond}))

	conn, err := m.Acquire(context.Background(), "db")
	require.NoError(t, err)
	m.Release("db", conn)

	err = m.ExecuteWithConnection(context.Background(), "db", func(conn interface{}) error { return nil })
	require.NoError(t, err)

	m.Shutdown()
	assert.Equal(t, int64(1), atomic.LoadInt64(destroyed))
}

func TestManager_UnknownPoolReturnsError(t *testing.T) {
	m := NewManager()
	_, err := m.Acquire(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestManager_DuplicatePoolNameRejected(t *testing.T) {
	factory, _, _ := countingFactory()
	m := NewManager()
	require.NoError(t, m.CreatePool("dup", factory, Options{}))
	err := m.CreatePool("dup", factory, Options{})
	assert.ErrorIs(t, err, ErrPoolAlreadyExists)
}
