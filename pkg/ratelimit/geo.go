package ratelimit

import "context"

// GeoInfo carries whatever a GeoLookup collaborator could resolve about
// an IP. CountryCode is "unknown" when the lookup has no answer.
type GeoInfo struct {
	CountryCode  string
	IsProxy      bool
	IsDatacenter bool
}

// GeoLookup resolves geographic and network-reputation metadata for an
// IP. The engine defers the real source of this data to an external
// collaborator; NoopGeoLookup is the default stand-in used until one is
// wired in.
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) (GeoInfo, error)
}

// NoopGeoLookup always reports unknown geography and no reputation
// signal, so suspicion scoring degrades gracefully when no real
// GeoLookup collaborator is configured.
type NoopGeoLookup struct{}

func (NoopGeoLookup) Lookup(ctx context.Context, ip string) (GeoInfo, error) {
	return GeoInfo{CountryCode: "unknown"}, nil
}
