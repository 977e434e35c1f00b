package pool

import "sync/atomic"

// Metrics counts one pool's lifetime activity: created/destroyed track
// connection churn, acquired/released track checkout traffic, and
// timeouts/errors track failure modes.
type Metrics struct {
	Created   int64
	Destroyed int64
	Acquired  int64
	Released  int64
	Timeouts  int64
	Errors    int64
}

func (m *Metrics) incCreated()   { atomic.AddInt64(&m.Created, 1) }
func (m *Metrics) incDestroyed() { atomic.AddInt64(&m.Destroyed, 1) }
func (m *Metrics) incAcquired()  { atomic.AddInt64(&m.Acquired, 1) }
func (m *Metrics) incReleased()  { atomic.AddInt64(&m.Released, 1) }
func (m *Metrics) incTimeouts()  { atomic.AddInt64(&m.Timeouts, 1) }
func (m *Metrics) incErrors()    { atomic.AddInt64(&m.Errors, 1) }

// Snapshot returns a copy safe for the caller to read without racing
// further updates.
func (m *Metrics) Snapshot() Metrics {
	return Metrics{
		Created:   atomic.LoadInt64(&m.Created),
		Destroyed: atomic.LoadInt64(&m.Destroyed),
		Acquired:  atomic.LoadInt64(&m.Acquired),
		Released:  atomic.LoadInt64(&m.Released),
		Timeouts:  atomic.LoadInt64(&m.Timeouts),
		Errors:    atomic.LoadInt64(&m.Errors),
	}
}
