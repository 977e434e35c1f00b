package recovery

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerOptions configures one CircuitBreaker.
type BreakerOptions struct {
	Window           time.Duration
	FailureThreshold float64
	VolumeThreshold  int
	SuccessThreshold int
	Cooldown         time.Duration
}

func (o *BreakerOptions) setDefaults() {
	if o.Window <= 0 {
		o.Window = time.Minute
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 0.5
	}
	if o.VolumeThreshold <= 0 {
		o.VolumeThreshold = 10
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = 3
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 30 * time.Second
	}
}

type sample struct {
	at time.Time
	ok bool
}

// CircuitBreaker tracks a rolling window of request outcomes for one
// resource and opens once both the failure rate and request volume
// within the window cross their configured thresholds.
type CircuitBreaker struct {
	mu sync.Mutex

	opts              BreakerOptions
	state             BreakerState
	samples           []sample
	nextAttempt       time.Time
	halfOpenInFlight  bool
	consecutiveOK     int
	lastTransitionErr error
}

func NewCircuitBreaker(opts BreakerOptions) *CircuitBreaker {
	opts.setDefaults()
	return &CircuitBreaker{opts: opts, state: BreakerClosed}
}

// State reports the breaker's current state, lazily transitioning
// Open to HalfOpen when the cooldown has elapsed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeEnterHalfOpen()
	return cb.state
}

func (cb *CircuitBreaker) maybeEnterHalfOpen() {
	if cb.state == BreakerOpen && !time.Now().Before(cb.nextAttempt) {
		cb.state = BreakerHalfOpen
		cb.halfOpenInFlight = false
		cb.consecutiveOK = 0
	}
}

// Allow reports whether a call against the guarded resource should
// proceed. In HalfOpen, exactly one in-flight probe is permitted at a
// time.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeEnterHalfOpen()

	switch cb.state {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if cb.halfOpenInFlight {
			return false
		}
		cb.halfOpenInFlight = true
		return true
	default:
		return true
	}
}

// Record folds one call's outcome into the breaker.
func (cb *CircuitBreaker) Record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-cb.opts.Window)
	kept := cb.samples[:0]
	for _, s := range cb.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	cb.samples = append(kept, sample{at: now, ok: ok})

	switch cb.state {
	case BreakerHalfOpen:
		cb.halfOpenInFlight = false
		if !ok {
			cb.trip(now)
			return
		}
		cb.consecutiveOK++
		if cb.consecutiveOK >= cb.opts.SuccessThreshold {
			cb.state = BreakerClosed
			cb.samples = nil
		}
	case BreakerClosed:
		if !ok && cb.volumeAndRateExceeded() {
			cb.trip(now)
		}
	}
}

func (cb *CircuitBreaker) volumeAndRateExceeded() bool {
	total := len(cb.samples)
	if total < cb.opts.VolumeThreshold {
		return false
	}
	failures := 0
	for _, s := range cb.samples {
		if !s.ok {
			failures++
		}
	}
	return float64(failures)/float64(total) >= cb.opts.FailureThreshold
}

func (cb *CircuitBreaker) trip(now time.Time) {
	cb.state = BreakerOpen
	cb.nextAttempt = now.Add(cb.opts.Cooldown)
	cb.consecutiveOK = 0
}

// Registry keys independent circuit breakers by resource name, e.g. a
// connection pool's name.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	opts     BreakerOptions
}

func NewRegistry(opts BreakerOptions) *Registry {
	return &Registry{breakers: make(map[string]*CircuitBreaker), opts: opts}
}

func (r *Registry) Get(resource string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[resource]; ok {
		return cb
	}
	cb := NewCircuitBreaker(r.opts)
	r.breakers[resource] = cb
	return cb
}
