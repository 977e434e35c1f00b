package ratelimit

import (
	"sync"
	"time"
)

// counterState is one tiered counter's rolling-window state: a failure
// count since windowStart, an optional active block, and a bounded ring
// of recent failure timestamps kept for audit/inspection. TTL expiry of
// the window is resolved inline under the same lock that performs the
// increment, so a window reset and a fresh failure can never be applied
// out of order; the "last writer wins with merged window start" rule
// falls out of that for free rather than needing separate handling.
type counterState struct {
	mu sync.Mutex

	windowStart       time.Time
	count             int
	blockedUntil      time.Time
	permanentlyLocked bool
	suspicionScore    float64
	history           []time.Time
}

func newCounterState(now time.Time) *counterState {
	return &counterState{windowStart: now}
}

// recordFailure folds one failure into the counter, resetting the
// rolling window if it has elapsed, applying weight (1 plus any
// suspicion bonus) to the count, and escalating the active block when
// the new count crosses a tier threshold.
func (c *counterState) recordFailure(now time.Time, opts TierOptions, historySize int, weight float64, permanentThreshold int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.windowStart) > opts.Window {
		c.windowStart = now
		c.count = 0
	}

	if weight < 1 {
		weight = 1
	}
	c.count += int(weight + 0.5)
	c.suspicionScore += weight - 1

	if dur := opts.blockDurationFor(c.count); dur > 0 {
		candidate := now.Add(dur)
		if candidate.After(c.blockedUntil) {
			c.blockedUntil = candidate
		}
	}
	if permanentThreshold > 0 && c.count >= permanentThreshold {
		c.permanentlyLocked = true
	}

	c.history = append(c.history, now)
	if historySize > 0 && len(c.history) > historySize {
		c.history = c.history[len(c.history)-historySize:]
	}
}

// reset clears the rolling window and any timed block, but never clears
// a permanent lock: that requires explicit administrative action outside
// this package.
func (c *counterState) reset(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windowStart = now
	c.count = 0
	c.blockedUntil = time.Time{}
	c.suspicionScore = 0
}

// blocked reports whether the counter currently blocks its subject, and
// for how much longer.
func (c *counterState) blocked(now time.Time) (bool, string, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.permanentlyLocked {
		return true, "permanent_lock", 0
	}
	if !c.blockedUntil.IsZero() && now.Before(c.blockedUntil) {
		return true, "blocked", c.blockedUntil.Sub(now)
	}
	return false, "", 0
}

func (c *counterState) snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := make([]time.Time, len(c.history))
	copy(history, c.history)
	return CounterSnapshot{
		WindowStart:       c.windowStart,
		Count:             c.count,
		BlockedUntil:      c.blockedUntil,
		PermanentlyLocked: c.permanentlyLocked,
		SuspicionScore:    c.suspicionScore,
		History:           history,
	}
}

// CounterSnapshot is a read-only view of one tier's counter state,
// returned by Manager.Inspect for diagnostics and tests.
type CounterSnapshot struct {
	WindowStart       time.Time
	Count             int
	BlockedUntil      time.Time
	PermanentlyLocked bool
	SuspicionScore    float64
	History           []time.Time
}
