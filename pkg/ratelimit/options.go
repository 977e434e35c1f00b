package ratelimit

import "time"

// TierOptions configures one tier's (ip, account, or ip+account) rolling
// window and escalation thresholds. MaxAttempts triggers the standard
// block; crossing Level2Attempts or Level3Attempts within the same
// rolling window replaces it with a longer block. PermanentLockThreshold
// is typically set only on the account tier; zero disables it.
type TierOptions struct {
	Window                 time.Duration
	MaxAttempts            int
	StandardBlockDuration  time.Duration
	Level2Attempts         int
	Level2BlockDuration    time.Duration
	Level3Attempts         int
	Level3BlockDuration    time.Duration
	PermanentLockThreshold int
}

func (o *TierOptions) setDefaults() {
	if o.Window <= 0 {
		o.Window = 15 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 20
	}
	if o.StandardBlockDuration <= 0 {
		o.StandardBlockDuration = 15 * time.Minute
	}
	if o.Level2Attempts <= 0 {
		o.Level2Attempts = 50
	}
	if o.Level2BlockDuration <= 0 {
		o.Level2BlockDuration = time.Hour
	}
	if o.Level3Attempts <= 0 {
		o.Level3Attempts = 100
	}
	if o.Level3BlockDuration <= 0 {
		o.Level3BlockDuration = 24 * time.Hour
	}
}

// blockDurationFor returns the block duration that applies once count
// failures have accumulated within the window, or zero if count hasn't
// crossed the standard threshold yet.
func (o TierOptions) blockDurationFor(count int) time.Duration {
	switch {
	case o.Level3Attempts > 0 && count >= o.Level3Attempts:
		return o.Level3BlockDuration
	case o.Level2Attempts > 0 && count >= o.Level2Attempts:
		return o.Level2BlockDuration
	case count >= o.MaxAttempts:
		return o.StandardBlockDuration
	default:
		return 0
	}
}

// ManagerOptions configures a Manager's three independent tiers plus its
// suspicion-scoring collaborators.
type ManagerOptions struct {
	IP        TierOptions
	Account   TierOptions
	IPAccount TierOptions

	// SuspiciousIdentifiers matches against ip/account to add a flat
	// suspicion score on failure (e.g. known scanner ranges, disposable
	// account name patterns).
	SuspiciousIdentifiers []string
	// SuspiciousUserAgents matches against the supplied user agent.
	SuspiciousUserAgents []string
	// BusinessHoursStart/End are in the local clock's hour-of-day [0,24);
	// failures outside this range add to the suspicion score. Zero values
	// for both disables the business-hours check.
	BusinessHoursStart int
	BusinessHoursEnd   int

	Geo GeoLookup

	// HistorySize bounds the ring buffer of recent failure timestamps kept
	// per counter for audit/inspection; it does not affect blocking.
	HistorySize int
}

func (o *ManagerOptions) setDefaults() {
	o.IP.setDefaults()
	o.Account.setDefaults()
	o.IPAccount.setDefaults()
	if o.Account.PermanentLockThreshold < 0 {
		o.Account.PermanentLockThreshold = 0
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 20
	}
	if o.Geo == nil {
		o.Geo = NoopGeoLookup{}
	}
}
