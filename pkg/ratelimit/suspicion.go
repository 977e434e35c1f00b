package ratelimit

import (
	"context"
	"regexp"
	"time"
)

// suspicionRule pairs a compiled pattern with the weight it adds to a
// failure's effective count when it matches, following the same
// ordered-pattern-table idiom used for universal type detection.
type suspicionRule struct {
	pattern *regexp.Regexp
	weight  float64
}

func compileSuspicionRules(patterns []string, weight float64) []suspicionRule {
	rules := make([]suspicionRule, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		rules = append(rules, suspicionRule{pattern: re, weight: weight})
	}
	return rules
}

const (
	identifierMatchWeight = 2.0
	userAgentMatchWeight  = 1.5
	offHoursWeight        = 1.0
	proxyWeight           = 2.0
	datacenterWeight      = 1.0
)

// suspicionWeight combines every configured heuristic into one extra
// weight added atop a failure's base count of 1, along with the reasons
// that contributed to it. A stubbed GeoLookup degrades this to just the
// identifier/user-agent/business-hours heuristics.
func (m *Manager) suspicionWeight(ctx context.Context, ip, account, userAgent string, now time.Time) (float64, []string) {
	var weight float64
	var reasons []string

	for _, rule := range m.identifierRules {
		if rule.pattern.MatchString(ip) || (account != "" && rule.pattern.MatchString(account)) {
			weight += rule.weight
			reasons = append(reasons, "suspicious_identifier")
			break
		}
	}
	if userAgent != "" {
		for _, rule := range m.userAgentRules {
			if rule.pattern.MatchString(userAgent) {
				weight += rule.weight
				reasons = append(reasons, "suspicious_user_agent")
				break
			}
		}
	}
	if m.opts.BusinessHoursStart != m.opts.BusinessHoursEnd {
		hour := now.Hour()
		inHours := hour >= m.opts.BusinessHoursStart && hour < m.opts.BusinessHoursEnd
		if !inHours {
			weight += offHoursWeight
			reasons = append(reasons, "off_hours")
		}
	}

	if geo, err := m.opts.Geo.Lookup(ctx, ip); err == nil {
		if geo.IsProxy {
			weight += proxyWeight
			reasons = append(reasons, "geo_proxy")
		}
		if geo.IsDatacenter {
			weight += datacenterWeight
			reasons = append(reasons, "geo_datacenter")
		}
	}

	return weight, reasons
}
